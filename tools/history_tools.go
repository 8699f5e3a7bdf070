package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"blender_mcp/history"
)

func (s *Server) registerHistoryTools() {
	s.mcp.AddTool(mcp.NewTool("get_generation_history",
		mcp.WithDescription("List past generation runs recorded in the history database"),
		mcp.WithString("correlation_id",
			mcp.Description("Only show records from one run (a workflow produces several records under the same id)")),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of records to return"),
			mcp.DefaultNumber(10)),
	), s.handleGenerationHistory)
}

func (s *Server) handleGenerationHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.deps.Config.HistoryEnabled() {
		return mcp.NewToolResultText(
			"Generation history is disabled. Set HISTORY_DB_PATH to a writable file path and restart this server to record runs."), nil
	}

	correlationID := req.GetString("correlation_id", "")
	limit := req.GetInt("limit", 10)

	var (
		records []history.Record
		err     error
	)
	if correlationID != "" {
		records, err = s.deps.History.ByCorrelationID(ctx, correlationID)
		if err == nil && limit > 0 && len(records) > limit {
			records = records[:limit]
		}
	} else {
		records, err = s.deps.History.Recent(ctx, limit)
	}
	if err != nil {
		return errorText("reading generation history", err), nil
	}

	total, err := s.deps.History.Count(ctx)
	if err != nil {
		return errorText("counting generation history", err), nil
	}

	if len(records) == 0 {
		if correlationID != "" {
			return mcp.NewToolResultText(fmt.Sprintf(
				"No records for correlation id %s (%d records stored in total).", correlationID, total)), nil
		}
		return mcp.NewToolResultText("No generation runs recorded yet."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Showing %d of %d recorded runs, newest first:\n", len(records), total)
	for _, rec := range records {
		fmt.Fprintf(&b, "\n[%s] %s %s (%.1fs)",
			rec.CreatedAt.Format("2006-01-02 15:04:05"), rec.Kind, rec.Status,
			float64(rec.DurationMS)/1000)
		fmt.Fprintf(&b, "\n  correlation_id: %s", rec.CorrelationID)
		if rec.Prompt != "" {
			fmt.Fprintf(&b, "\n  prompt: %s", rec.Prompt)
		}
		if rec.Seed != 0 {
			fmt.Fprintf(&b, "\n  seed: %d", rec.Seed)
		}
		if rec.OutputPath != "" {
			fmt.Fprintf(&b, "\n  output: %s", rec.OutputPath)
		}
		if rec.ErrorMessage != "" {
			fmt.Fprintf(&b, "\n  error: %s", rec.ErrorMessage)
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}
