package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"plan-manager-go/internal/tools"
	"plan-manager-go/internal/watch"
	"plan-manager-go/internal/web"
)

const serverInstructions = `Plan manager tracks work as Plan → Story → Task.
Tasks pass two gates: attach steps with create_task_steps (or approve with no steps to fast-track) to start,
then submit_for_review and approve_task to finish. request_changes sends a task back for rework.
Use get_current_context and select_first_unblocked_task to find what to work on next.`

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func serveCmd(projectRoot *string) *cobra.Command {
	var withBrowser bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(*projectRoot)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			s := server.NewMCPServer(
				"plan-manager",
				Version,
				server.WithToolCapabilities(false),
				server.WithResourceCapabilities(false, false),
				server.WithRecovery(),
				server.WithLogging(),
				server.WithInstructions(serverInstructions),
			)
			tools.RegisterAll(s, tools.NewSessionManager(a.svc, a.metrics, a.cfg.ProjectRoot))

			if withBrowser || a.cfg.Browser.Enabled {
				srv := web.NewServer(a.svc, a.cfg.TodoDir, a.metrics)
				go func() {
					if err := srv.Run(ctx, a.cfg.Browser.Addr); err != nil {
						a.logger.Error("browser stopped", "error", err)
					}
				}()
			}

			a.logger.Info("serving MCP over stdio", "tools", len(s.ListTools()))
			return server.ServeStdio(s, server.WithErrorLogger(slog.NewLogLogger(a.logger.Handler(), slog.LevelError)))
		},
	}

	cmd.Flags().BoolVar(&withBrowser, "browser", false, "also start the read-only HTTP browser")
	return cmd
}

func browseCmd(projectRoot *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Serve the read-only todo browser and JSON API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(*projectRoot)
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = a.cfg.Browser.Addr
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			fmt.Fprintf(cmd.ErrOrStderr(), "Browsing %s at http://%s/\n", a.cfg.TodoDir, addr)
			return web.NewServer(a.svc, a.cfg.TodoDir, a.metrics).Run(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: browser.addr)")
	return cmd
}

func reportCmd(projectRoot *string) *cobra.Command {
	var scope string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print a progress report for the current story or plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(*projectRoot)
			if err != nil {
				return err
			}
			defer a.Close()

			text, err := a.svc.Report(cmd.Context(), scope)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}

	cmd.Flags().StringVarP(&scope, "scope", "s", "story", "report scope (story, plan)")
	return cmd
}

func watchCmd(projectRoot *string) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the todo directory and validate external plan edits",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(*projectRoot)
			if err != nil {
				return err
			}
			defer a.Close()

			w, err := watch.New(a.cfg.TodoDir, watch.Options{
				Validate: func(planID string) error {
					_, err := a.repo.Load(planID)
					return err
				},
			}, a.logger)
			if err != nil {
				return fmt.Errorf("create watcher: %w", err)
			}
			defer w.Stop()

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			if err := w.Start(ctx); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)
			for change := range w.Changes() {
				if asJSON {
					line := struct {
						watch.Change
						Error string `json:"error,omitempty"`
					}{Change: change}
					if change.Err != nil {
						line.Error = change.Err.Error()
					}
					if err := enc.Encode(line); err != nil {
						return err
					}
					continue
				}
				status := "ok"
				if change.Err != nil {
					status = "INVALID: " + change.Err.Error()
				}
				fmt.Fprintf(out, "%-6s %-6s %s  %s\n", change.Kind, change.Op, change.Path, status)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "emit one JSON object per change")
	return cmd
}
