// Package mcp exposes the annotation session as MCP tools over stdio.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/hpungsan/anno/internal/config"
	"github.com/hpungsan/anno/internal/session"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"anno_current": {
		def:     currentToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCurrent },
	},
	"anno_categories": {
		def:     categoriesToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCategories },
	},
	"anno_set_labels": {
		def:     setLabelsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSetLabels },
	},
	"anno_navigate": {
		def:     navigateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleNavigate },
	},
	"anno_save_local": {
		def:     saveLocalToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSaveLocal },
	},
	"anno_save_remote": {
		def:     saveRemoteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSaveRemote },
	},
	"anno_reload_remote": {
		def:     reloadRemoteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleReloadRemote },
	},
	"anno_progress": {
		def:     progressToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleProgress },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates a new MCP server with anno tools registered.
// Tools listed in cfg.DisabledTools are excluded from registration.
func NewServer(ctl *session.Controller, cfg *config.Config, version string, logger *zap.Logger) *server.MCPServer {
	s := server.NewMCPServer(
		"anno",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(ctl, logger)

	disabled := make(map[string]bool, len(cfg.DisabledTools))
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(ctl *session.Controller, cfg *config.Config, version string, logger *zap.Logger) error {
	s := NewServer(ctl, cfg, version, logger)
	return server.ServeStdio(s)
}
