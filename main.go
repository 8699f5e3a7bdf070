package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"blender_mcp/blender"
	"blender_mcp/core"
	"blender_mcp/history"
	"blender_mcp/hunyuan"
	"blender_mcp/logging"
	"blender_mcp/metrics"
	"blender_mcp/sdapi"
	"blender_mcp/shutdown"
	"blender_mcp/tools"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Load .env file if it exists. Everything human-readable goes to
	// stderr; stdout carries the MCP JSON-RPC stream.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: could not load .env file: %v\n", err)
	}

	cfg, err := core.LoadConfig()
	if err != nil {
		printConfigError(os.Stderr, err)
		return core.ExitCodeError
	}

	logger, err := logging.NewLogger(cfg.DevMode, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return core.ExitCodeError
	}
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.String("blender_addr", cfg.BlenderAddr()),
		zap.String("sd_webui_url", cfg.SDWebUIURL),
		zap.String("hunyuan3d_url", cfg.Hunyuan3DURL),
		zap.String("output_dir", cfg.OutputDir),
		zap.Bool("history_enabled", cfg.HistoryEnabled()),
		zap.Bool("dev_mode", cfg.DevMode),
	)

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		dirErr := core.ErrInvalidOutputDir(cfg.OutputDir, err.Error())
		logger.Error("failed to create output directory", zap.Error(dirErr))
		printConfigError(os.Stderr, dirErr)
		return core.ExitCodeError
	}

	probeCtx, cancelProbe := context.WithTimeout(context.Background(), 10*time.Second)
	caps := core.ProbeCapabilities(probeCtx, cfg)
	cancelProbe()
	printCapabilities(os.Stderr, cfg, caps)
	logger.Info("capability probe finished", zap.String("capabilities", caps.Summary()))
	if !caps.Blender {
		unreachable := core.ErrBackendUnreachable("the Blender addon", cfg.BlenderAddr(),
			"the startup probe got no TCP connection")
		logger.Warn("blender addon unreachable",
			zap.String("code", unreachable.Code),
			zap.String("action", unreachable.Action))
	}

	manager := shutdown.NewManager(logger)

	blenderClient := blender.NewClient(cfg.BlenderAddr(), cfg.BlenderTimeout, logger)
	manager.Register("blender", 20, func(ctx context.Context) error {
		blenderClient.Disconnect()
		return nil
	})

	var sdClient tools.SDClient
	if caps.StableDiffusion {
		sdClient = sdapi.NewClient(cfg.SDWebUIURL,
			core.GetHTTPClient(cfg, cfg.SDTimeout),
			core.GetHTTPClient(cfg, cfg.SDStatusTimeout),
			logger)
	}

	var hunyuanClient tools.HunyuanClient
	if caps.Hunyuan3D {
		hunyuanClient = hunyuan.NewClient(cfg.Hunyuan3DURL,
			core.GetHTTPClient(cfg, cfg.HunyuanTimeout),
			core.GetHTTPClient(cfg, cfg.SDStatusTimeout),
			logger)
	}

	var historyStore history.Store = history.NullStore{}
	if cfg.HistoryEnabled() {
		store, err := history.Open(cfg.HistoryDBPath, logger)
		if err != nil {
			logger.Error("failed to open history database", zap.Error(err))
			color.New(color.FgRed).Fprintf(os.Stderr, "Cannot open history database %s: %v\n", cfg.HistoryDBPath, err)
			return core.ExitCodeError
		}
		historyStore = store
		manager.Register("history", 10, store.Close)
	}

	metricsStore := metrics.NewStore(metrics.StoreConfig{
		TaskHistoryCapacity: 100,
		Version:             tools.Version,
	}, time.Now())
	metricsStore.UpdateBackendStatus(metrics.BackendStatus{
		Name: metrics.BackendBlender, URL: cfg.BlenderAddr(),
		Available: caps.Blender, LastCheck: time.Now(),
	})
	metricsStore.UpdateBackendStatus(metrics.BackendStatus{
		Name: metrics.BackendStableDiffusion, URL: cfg.SDWebUIURL,
		Available: caps.StableDiffusion, LastCheck: time.Now(),
	})
	metricsStore.UpdateBackendStatus(metrics.BackendStatus{
		Name: metrics.BackendHunyuan3D, URL: cfg.Hunyuan3DURL,
		Available: caps.Hunyuan3D, LastCheck: time.Now(),
	})

	manager.Register("logger", 90, func(ctx context.Context) error {
		logger.Sync()
		return nil
	})
	manager.Start()

	server := tools.NewServer(tools.Deps{
		Config:  cfg,
		Logger:  logger,
		Caps:    caps,
		Blender: blenderClient,
		SD:      sdClient,
		Hunyuan: hunyuanClient,
		History: historyStore,
		Metrics: metricsStore,
		Manager: manager,
	})

	serveErr := server.Serve()

	if err := manager.Shutdown(); err != nil {
		logger.Error("shutdown finished with errors", zap.Error(err))
	}
	if serveErr != nil {
		logger.Error("MCP server stopped with error", zap.Error(serveErr))
		return core.ExitCodeError
	}

	logger.Info("goodbye")
	return core.ExitCodeSuccess
}

// printConfigError renders a configuration failure with its remediation
// action on a separate line.
func printConfigError(w io.Writer, err error) {
	cfgErr, ok := core.IsConfigError(err)
	if !ok {
		color.New(color.FgRed).Fprintf(w, "Configuration error: %v\n", err)
		return
	}
	color.New(color.FgRed).Fprintf(w, "Configuration error: %s\n", cfgErr.Message)
	fmt.Fprintf(w, "  %s\n", cfgErr.Action)
}

// printCapabilities writes a human-readable startup summary to stderr so
// someone launching the binary by hand can see what was reachable.
func printCapabilities(w io.Writer, cfg *core.Config, caps core.Capabilities) {
	ok := color.New(color.FgGreen)
	down := color.New(color.FgYellow)

	line := func(available bool, name, addr, hint string) {
		if available {
			ok.Fprintf(w, "  [ok]   %s (%s)\n", name, addr)
			return
		}
		down.Fprintf(w, "  [down] %s (%s) - %s\n", name, addr, hint)
	}

	fmt.Fprintf(w, "BlenderMCP %s\n", tools.Version)
	line(caps.Blender, "Blender addon", cfg.BlenderAddr(),
		"start the addon server from the BlenderMCP panel")
	line(caps.StableDiffusion, "Stable Diffusion WebUI", cfg.SDWebUIURL,
		"launch AUTOMATIC1111 with --api, or set SD_WEBUI_URL")
	line(caps.Hunyuan3D, "Hunyuan3D API", cfg.Hunyuan3DURL,
		"start the Hunyuan3D API server, or set HUNYUAN3D_URL")
}
