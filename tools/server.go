// Package tools exposes the MCP tool surface: Blender scene inspection and
// code execution, asset library integrations, Stable Diffusion image
// generation, Hunyuan3D and Hyper3D model generation, the parameter
// optimizer, and the text-to-3D workflow.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"blender_mcp/blender"
	"blender_mcp/core"
	"blender_mcp/history"
	"blender_mcp/hunyuan"
	"blender_mcp/logging"
	"blender_mcp/metrics"
	"blender_mcp/sdapi"
	"blender_mcp/shutdown"
	"blender_mcp/workflow"
)

// Version is reported in the MCP handshake and the status tools.
const Version = "1.2.0"

// BlenderClient is the slice of the addon protocol the tools call.
type BlenderClient interface {
	State() blender.State
	GetSceneInfo(ctx context.Context) (json.RawMessage, error)
	GetObjectInfo(ctx context.Context, objectName string) (json.RawMessage, error)
	GetViewportScreenshot(ctx context.Context, maxSize int, filepath, format string) (json.RawMessage, error)
	ExecuteCode(ctx context.Context, code string) (json.RawMessage, error)
	GetPolyHavenStatus(ctx context.Context) (*blender.IntegrationStatus, error)
	GetPolyHavenCategories(ctx context.Context, assetType string) (json.RawMessage, error)
	SearchPolyHavenAssets(ctx context.Context, assetType, categories string) (json.RawMessage, error)
	DownloadPolyHavenAsset(ctx context.Context, assetID, assetType, resolution, fileFormat string) (json.RawMessage, error)
	SetTexture(ctx context.Context, objectName, textureID string) (json.RawMessage, error)
	GetSketchfabStatus(ctx context.Context) (*blender.IntegrationStatus, error)
	SearchSketchfabModels(ctx context.Context, query, categories string, count int, downloadable bool) (json.RawMessage, error)
	DownloadSketchfabModel(ctx context.Context, uid string) (json.RawMessage, error)
	GetHyper3DStatus(ctx context.Context) (*blender.IntegrationStatus, error)
	CreateRodinJob(ctx context.Context, textPrompt string, images []any, bboxCondition []int) (json.RawMessage, error)
	PollRodinJobStatus(ctx context.Context, subscriptionKey, requestID string) (json.RawMessage, error)
	ImportGeneratedAsset(ctx context.Context, name, taskUUID, requestID string) (json.RawMessage, error)
	ImportHunyuan3DModel(ctx context.Context, name, modelBase64 string) (json.RawMessage, error)
}

// SDClient is the Stable Diffusion WebUI surface the tools call.
type SDClient interface {
	Txt2Img(ctx context.Context, req *sdapi.Txt2ImgRequest) (*sdapi.GenerationResponse, error)
	Img2Img(ctx context.Context, req *sdapi.Img2ImgRequest) (*sdapi.GenerationResponse, error)
	GetModels(ctx context.Context) ([]sdapi.Model, error)
	GetSamplers(ctx context.Context) ([]sdapi.Sampler, error)
	GetProgress(ctx context.Context) (*sdapi.Progress, error)
	CheckHealth(ctx context.Context) (*sdapi.Options, error)
}

// HunyuanClient is the Hunyuan3D API surface the tools call.
type HunyuanClient interface {
	Health(ctx context.Context) error
	Generate(ctx context.Context, req *hunyuan.GenerateRequest) ([]byte, error)
	Send(ctx context.Context, req *hunyuan.GenerateRequest) (string, error)
	Status(ctx context.Context, uid string) (*hunyuan.TaskStatus, error)
	Download(ctx context.Context, uid string) ([]byte, error)
}

// Deps carries everything the tool handlers need. Blender is always
// required; SD and Hunyuan may be nil when the capability probe found them
// down, in which case their tools answer with guidance instead of errors.
type Deps struct {
	Config  *core.Config
	Logger  *logging.Logger
	Caps    core.Capabilities
	Blender BlenderClient
	SD      SDClient
	Hunyuan HunyuanClient
	History history.Store
	Metrics metrics.Collector
	Manager *shutdown.Manager

	// HTTPClient downloads reference images given by URL.
	HTTPClient *http.Client
}

// Server wires the tool handlers onto an MCP stdio server.
type Server struct {
	deps   Deps
	logger *logging.Logger
	mcp    *server.MCPServer

	mu           sync.Mutex
	workflowRuns map[string]*workflowRun
}

// workflowRun is a tracked workflow execution.
type workflowRun struct {
	description string
	startedAt   time.Time
	manager     *workflow.Manager
	result      *workflow.Result
}

// NewServer builds the MCP server and registers every tool and prompt.
func NewServer(deps Deps) *Server {
	if deps.HTTPClient == nil {
		deps.HTTPClient = core.GetDefaultHTTPClient(deps.Config)
	}

	s := &Server{
		deps:         deps,
		logger:       deps.Logger.Named("tools"),
		workflowRuns: make(map[string]*workflowRun),
	}

	s.mcp = server.NewMCPServer(
		"BlenderMCP",
		Version,
		server.WithToolCapabilities(true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
	)

	s.registerBlenderTools()
	s.registerAssetTools()
	s.registerHyper3DTools()
	s.registerHunyuanTools()
	s.registerSDTools()
	s.registerOptimizerTools()
	s.registerWorkflowTools()
	s.registerHistoryTools()
	s.registerPrompts()

	return s
}

// Serve runs the stdio transport until the client disconnects or the
// process is told to stop. Everything on stdout belongs to the JSON-RPC
// stream from here on.
func (s *Server) Serve() error {
	s.logger.Info("serving MCP over stdio",
		zap.String("version", Version),
		zap.String("capabilities", s.deps.Caps.Summary()))
	return server.ServeStdio(s.mcp)
}

// MCP exposes the underlying server for in-process tests.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// errorText renders a backend failure as tool output a model can act on.
func errorText(action string, err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", action, err))
}

// guidance is returned by tools whose backend was down at startup.
func guidance(what, envVar, url string) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf(
		"%s is not available. Start it and restart this server, or point %s at the right address (currently %s).",
		what, envVar, url))
}

// track records a finished operation in the metrics store and, when the
// history store is live, persists it.
func (s *Server) track(ctx context.Context, kind, correlationID, prompt, params string, start time.Time, outputPath string, seed int64, opErr error) {
	duration := time.Since(start)

	status := metrics.TaskStatusSuccess
	errMsg := ""
	if opErr != nil {
		status = metrics.TaskStatusError
		errMsg = opErr.Error()
	}

	s.deps.Metrics.RecordTask(metrics.TaskRecord{
		ID:        correlationID,
		Type:      kind,
		Status:    status,
		Prompt:    prompt,
		StartTime: start,
		EndTime:   start.Add(duration),
		Duration:  duration,
		ErrorMsg:  errMsg,
	})

	historyStatus := history.StatusSuccess
	if opErr != nil {
		historyStatus = history.StatusError
	}
	if _, err := s.deps.History.Insert(ctx, history.Record{
		CorrelationID: correlationID,
		Kind:          kind,
		Prompt:        prompt,
		Params:        params,
		Seed:          seed,
		OutputPath:    outputPath,
		DurationMS:    int(duration.Milliseconds()),
		Status:        historyStatus,
		ErrorMessage:  errMsg,
	}); err != nil {
		s.logger.Warn("history insert failed", zap.Error(err))
	}
}

// rawResult renders an addon JSON payload as tool text.
func rawResult(raw json.RawMessage) *mcp.CallToolResult {
	return mcp.NewToolResultText(string(raw))
}
