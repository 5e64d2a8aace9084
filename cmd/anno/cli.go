package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/hpungsan/anno/internal/config"
	"github.com/hpungsan/anno/internal/errors"
	"github.com/hpungsan/anno/internal/fsutil"
	"github.com/hpungsan/anno/internal/logging"
	"github.com/hpungsan/anno/internal/mcp"
	"github.com/hpungsan/anno/internal/session"
	"github.com/hpungsan/anno/internal/web"
)

// appEnv carries what every command needs to start a session.
type appEnv struct {
	baseDir string
	cfg     *config.Config
	journal *sql.DB
	logger  *zap.Logger
}

// openSession runs the startup sequence for one command invocation.
func (e *appEnv) openSession(ctx context.Context) (*session.Controller, error) {
	opts := session.OptionsFromConfig(e.cfg)
	opts.Journal = e.journal
	opts.Logger = e.logger
	return session.New(ctx, opts)
}

func (e *appEnv) exportsDir() string {
	return filepath.Join(e.baseDir, "exports")
}

func (e *appEnv) exportPolicy() fsutil.ExportPolicy {
	return fsutil.ExportPolicy{
		Dirs:        append([]string{e.exportsDir()}, e.cfg.AllowedPaths...),
		AllowUnsafe: e.cfg.AllowUnsafePaths,
	}
}

func (e *appEnv) close() {
	if e.journal != nil {
		e.journal.Close()
	}
}

// newCLIApp creates the CLI application with all commands.
// env may be nil when only help or version output is needed.
func newCLIApp(env *appEnv) *cli.App {
	app := &cli.App{
		Name:    "anno",
		Usage:   "Annotate a text corpus with categories, mirrored to shared storage",
		Version: Version,
		Commands: []*cli.Command{
			progressCmd(env),
			showCmd(env),
			labelCmd(env),
			saveCmd(env),
			pullCmd(env),
			categoriesCmd(env),
			historyCmd(env),
			infoCmd(env),
			exportCmd(env),
			serveCmd(env),
			tuiCmd(env),
			mcpCmd(env),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// withSession wraps a command action with session startup.
func withSession(env *appEnv, action func(*cli.Context, *session.Controller) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		ctl, err := env.openSession(c.Context)
		if err != nil {
			return outputError(err)
		}
		return action(c, ctl)
	}
}

// progressCmd creates the progress command.
func progressCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "progress",
		Usage: "Show how many texts are annotated",
		Action: withSession(env, func(_ *cli.Context, ctl *session.Controller) error {
			return outputJSON(ctl.Progress())
		}),
	}
}

// showCmd creates the show command.
func showCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "show",
		Usage: "Show a text with its labels (defaults to the first unannotated text)",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "index", Aliases: []string{"i"}, Usage: "Corpus position (0-based, clamped)"},
			&cli.StringFlag{Name: "id", Usage: "Text id"},
		},
		Action: withSession(env, func(c *cli.Context, ctl *session.Controller) error {
			if c.IsSet("index") && c.IsSet("id") {
				return outputError(errors.NewInvalidRequest("use either --index or --id"))
			}
			switch {
			case c.IsSet("index"):
				ctl.Goto(c.Int("index"))
			case c.IsSet("id"):
				if _, err := ctl.GotoID(c.String("id")); err != nil {
					return outputError(err)
				}
			}

			rec, err := ctl.CurrentRecord()
			if err != nil {
				return outputError(err)
			}
			return outputJSON(rec)
		}),
	}
}

// labelCmd creates the label command.
func labelCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "label",
		Usage: "Set the labels of one or more texts and save",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "id", Required: true, Usage: "Text id (repeatable)"},
			&cli.StringFlag{Name: "labels", Aliases: []string{"l"}, Required: true, Usage: "Comma-separated labels (empty clears)"},
			&cli.BoolFlag{Name: "remote", Aliases: []string{"r"}, Usage: "Also upload to the mirror"},
		},
		Action: withSession(env, func(c *cli.Context, ctl *session.Controller) error {
			if err := ctl.SetLabels(c.StringSlice("id"), parseLabels(c.String("labels"))); err != nil {
				return outputError(err)
			}
			return save(c.Context, ctl, c.Bool("remote"))
		}),
	}
}

// saveCmd creates the save command.
func saveCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "save",
		Usage: "Rewrite the local annotation file, optionally uploading it",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "remote", Aliases: []string{"r"}, Usage: "Also upload to the mirror"},
		},
		Action: withSession(env, func(c *cli.Context, ctl *session.Controller) error {
			return save(c.Context, ctl, c.Bool("remote"))
		}),
	}
}

func save(ctx context.Context, ctl *session.Controller, remote bool) error {
	if !remote {
		out, err := ctl.SaveLocal(ctx)
		if err != nil {
			return outputError(err)
		}
		return outputJSON(out)
	}

	out, err := ctl.SaveRemote(ctx)
	if out != nil {
		// The local save may have succeeded even if the upload did not.
		if jerr := outputJSON(out); jerr != nil {
			return jerr
		}
	}
	if err != nil {
		return outputError(err)
	}
	return nil
}

// pullCmd creates the pull command.
func pullCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "pull",
		Usage: "Replace the local annotation file with the mirror copy",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Confirm that local edits may be overwritten"},
		},
		Action: withSession(env, func(c *cli.Context, ctl *session.Controller) error {
			out, err := ctl.ReloadFromRemote(c.Context, c.Bool("force"))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(out)
		}),
	}
}

// categoriesCmd creates the categories command.
func categoriesCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "categories",
		Usage: "List the category vocabulary",
		Action: withSession(env, func(_ *cli.Context, ctl *session.Controller) error {
			return outputJSON(map[string]any{"categories": ctl.Categories()})
		}),
	}
}

// historyCmd creates the history command.
func historyCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show journalled label changes for a text",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "id", Required: true, Usage: "Text id"},
			&cli.IntFlag{Name: "limit", Value: 20, Usage: "Maximum number of changes"},
		},
		Action: withSession(env, func(c *cli.Context, ctl *session.Controller) error {
			changes, err := ctl.History(c.String("id"), c.Int("limit"))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{"id": c.String("id"), "changes": changes})
		}),
	}
}

// infoCmd creates the info command.
func infoCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "Show local file, mirror and session details",
		Action: withSession(env, func(_ *cli.Context, ctl *session.Controller) error {
			return outputJSON(ctl.Info())
		}),
	}
}

// exportCmd creates the export command.
func exportCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write a copy of the annotations to a CSV file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Export file path (defaults to ~/.anno/exports)"},
		},
		Action: withSession(env, func(c *cli.Context, ctl *session.Controller) error {
			path := c.String("path")
			if path == "" {
				path = filepath.Join(env.exportsDir(), "anotacje-"+time.Now().Format("20060102-150405")+fsutil.ExportExt)
			}
			if err := fsutil.ValidateExportPath(path, env.exportPolicy()); err != nil {
				return outputError(err)
			}

			out, err := ctl.Export(path)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(out)
		}),
	}
}

// serveCmd creates the serve command.
func serveCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the annotation UI over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Value: 8080, Usage: "Port to listen on"},
		},
		Action: withSession(env, func(c *cli.Context, ctl *session.Controller) error {
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv, err := web.NewServer(ctl, env.cfg, Version, c.String("bind"), c.Int("port"), env.logger)
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			if err := web.Run(ctx, srv, env.logger); err != nil {
				return outputError(errors.NewInternal(err))
			}
			if ctl.Dirty() || ctl.Pending() {
				env.logger.Warn("exiting with unsaved edits", zap.String("local", ctl.LocalPath()))
			}
			return nil
		}),
	}
}

// tuiCmd creates the tui command.
func tuiCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "tui",
		Usage: "Annotate in the terminal",
		Action: func(c *cli.Context) error {
			logPath := filepath.Join(env.baseDir, "tui.log")
			logger, err := logging.NewFile(env.cfg.LogLevel, logPath)
			if err != nil {
				return outputError(errors.NewLocalIO("open log", logPath, err))
			}
			defer func() { _ = logger.Sync() }()

			tuiEnv := *env
			tuiEnv.logger = logger
			ctl, err := tuiEnv.openSession(c.Context)
			if err != nil {
				return outputError(err)
			}
			return runTUI(c.Context, ctl)
		},
	}
}

// mcpCmd creates the mcp command.
func mcpCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the session as MCP tools over stdio",
		Action: func(c *cli.Context) error {
			if err := runMCP(c.Context, env); err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

func runMCP(ctx context.Context, env *appEnv) error {
	if unknown := mcp.ValidateDisabledTools(env.cfg.DisabledTools); len(unknown) > 0 {
		env.logger.Warn("ignoring unknown disabled_tools entries", zap.Strings("tools", unknown))
	}
	ctl, err := env.openSession(ctx)
	if err != nil {
		return err
	}
	return mcp.Run(ctl, env.cfg, Version, env.logger)
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	aErr := errors.As(err)
	return cli.Exit(fmt.Sprintf("[%s] %s", aErr.Code, aErr.Message), 1)
}

// parseLabels splits a comma-separated string into labels. An empty string
// yields an empty, non-nil selection, which clears a text.
func parseLabels(s string) []string {
	parts := strings.Split(s, ",")
	labels := make([]string, 0, len(parts))
	for _, p := range parts {
		if l := strings.TrimSpace(p); l != "" {
			labels = append(labels, l)
		}
	}
	return labels
}
