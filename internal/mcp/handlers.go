package mcp

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/hpungsan/anno/internal/errors"
	"github.com/hpungsan/anno/internal/logging"
	"github.com/hpungsan/anno/internal/session"
)

// Handlers holds dependencies for MCP tool handlers.
// mu serialises controller calls; the stdio server may dispatch concurrently.
type Handlers struct {
	mu     sync.Mutex
	ctl    *session.Controller
	logger *zap.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(ctl *session.Controller, logger *zap.Logger) *Handlers {
	return &Handlers{ctl: ctl, logger: logging.OrNop(logger)}
}

// SetLabelsRequest represents the arguments for anno_set_labels.
type SetLabelsRequest struct {
	IDs    []string `json:"ids,omitempty"`
	Labels []string `json:"labels"`
}

// NavigateRequest represents the arguments for anno_navigate.
// Exactly one of Delta, Index or ID should be set.
type NavigateRequest struct {
	Delta *int   `json:"delta,omitempty"`
	Index *int   `json:"index,omitempty"`
	ID    string `json:"id,omitempty"`
}

// ReloadRequest represents the arguments for anno_reload_remote.
type ReloadRequest struct {
	Confirm bool `json:"confirm"`
}

// CurrentOutput is the response of anno_current and anno_set_labels.
type CurrentOutput struct {
	Record   *session.Record  `json:"record"`
	Progress session.Progress `json:"progress"`
	Dirty    bool             `json:"dirty"`
	Pending  bool             `json:"pending"`
}

// NavigateOutput is the response of anno_navigate.
type NavigateOutput struct {
	session.NavigateOutput
	Record *session.Record `json:"record"`
}

// HandleCurrent handles the anno_current tool call.
func (h *Handlers) HandleCurrent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	out, err := h.current()
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(out)
}

// HandleCategories handles the anno_categories tool call.
func (h *Handlers) HandleCategories(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return successResult(map[string]any{"categories": h.ctl.Categories()})
}

// HandleSetLabels handles the anno_set_labels tool call.
func (h *Handlers) HandleSetLabels(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SetLabelsRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if input.Labels == nil {
		return errorResult(errors.NewInvalidRequest("labels is required (use [] to clear)")), nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ids := input.IDs
	if len(ids) == 0 {
		cur, err := h.ctl.Current()
		if err != nil {
			return errorResult(err), nil
		}
		ids = []string{cur.ID}
	}

	if err := h.ctl.SetLabels(ids, input.Labels); err != nil {
		return errorResult(err), nil
	}

	out, err := h.current()
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(out)
}

// HandleNavigate handles the anno_navigate tool call.
func (h *Handlers) HandleNavigate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[NavigateRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	set := 0
	for _, ok := range []bool{input.Delta != nil, input.Index != nil, input.ID != ""} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return errorResult(errors.NewInvalidRequest("exactly one of delta, index or id is required")), nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var nav session.NavigateOutput
	switch {
	case input.Delta != nil:
		nav = h.ctl.Navigate(*input.Delta)
	case input.Index != nil:
		nav = h.ctl.Goto(*input.Index)
	default:
		nav, err = h.ctl.GotoID(input.ID)
		if err != nil {
			return errorResult(err), nil
		}
	}

	rec, err := h.ctl.CurrentRecord()
	if err != nil && !errors.Is(err, errors.ErrNotFound) {
		return errorResult(err), nil
	}
	return successResult(NavigateOutput{NavigateOutput: nav, Record: rec})
}

// HandleSaveLocal handles the anno_save_local tool call.
func (h *Handlers) HandleSaveLocal(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	out, err := h.ctl.SaveLocal(ctx)
	if err != nil {
		return h.failed("save_local", err), nil
	}
	return successResult(out)
}

// HandleSaveRemote handles the anno_save_remote tool call.
func (h *Handlers) HandleSaveRemote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	out, err := h.ctl.SaveRemote(ctx)
	if err != nil {
		return h.failed("save_remote", err), nil
	}
	return successResult(out)
}

// HandleReloadRemote handles the anno_reload_remote tool call.
func (h *Handlers) HandleReloadRemote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ReloadRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	out, err := h.ctl.ReloadFromRemote(ctx, input.Confirm)
	if err != nil {
		return h.failed("reload", err), nil
	}
	return successResult(out)
}

// HandleProgress handles the anno_progress tool call.
func (h *Handlers) HandleProgress(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return successResult(h.ctl.Progress())
}

func (h *Handlers) current() (*CurrentOutput, error) {
	rec, err := h.ctl.CurrentRecord()
	if err != nil && !errors.Is(err, errors.ErrNotFound) {
		return nil, err
	}
	return &CurrentOutput{
		Record:   rec,
		Progress: h.ctl.Progress(),
		Dirty:    h.ctl.Dirty(),
		Pending:  h.ctl.Pending(),
	}, nil
}

// failed logs a runtime failure and converts it to a tool error.
func (h *Handlers) failed(op string, err error) *mcp.CallToolResult {
	st := session.Describe(op, err)
	h.logger.Warn("tool call failed", zap.String("op", op), zap.String("code", st.Code), zap.String("message", st.Message))
	return errorResult(err)
}

// errorResult creates an MCP error result from an error.
func errorResult(err error) *mcp.CallToolResult {
	aErr := errors.As(err)

	errorObj := map[string]any{
		"code":    aErr.Code,
		"message": aErr.Message,
		"status":  aErr.Status,
	}
	if aErr.Code == errors.ErrInternal {
		// Internal errors can carry paths or driver messages
		errorObj["message"] = "an internal error occurred"
	} else if aErr.Details != nil {
		errorObj["details"] = aErr.Details
	}

	content, _ := json.Marshal(map[string]any{"error": errorObj})
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
