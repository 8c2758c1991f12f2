package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/crispai/crisp/internal/api"
	"github.com/crispai/crisp/internal/config"
	"github.com/crispai/crisp/internal/gateway"
	"github.com/crispai/crisp/internal/interview"
	"github.com/crispai/crisp/internal/session"
	"github.com/crispai/crisp/internal/storage"
	"github.com/crispai/crisp/internal/timer"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the crisp server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running crisp server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show crisp system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "crisp.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "crisp version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("crisp is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("crisp is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open the archive and rehydrate in-memory state. Sessions that were in
	// progress resume with their persisted countdowns.
	archive, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := archive.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	store := session.NewStore()
	if err := archive.Restore(store); err != nil {
		return fmt.Errorf("restoring sessions: %w", err)
	}
	slog.Info("state restored", "sessions", len(store.Sessions()), "candidates", len(store.Candidates()))

	// Build the interview engine.
	gw := gateway.NewOpenRouterWithBaseURL(cfg.Gateway.OpenRouterAPIKey, cfg.Gateway.Model, cfg.Gateway.BaseURL)
	orch := interview.New(store, gw)

	handler := api.NewHandler(api.Deps{
		Store:   store,
		Engine:  orch,
		Archive: archive,
		Token:   cfg.Server.APIToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	g, gctx := errgroup.WithContext(ctx)

	// Timer driver: one tick per second for every open session.
	driver := timer.NewDriver(store, &persistingTicker{orch: orch, store: store, archive: archive}, time.Second)
	g.Go(func() error {
		driver.Run(gctx)
		return nil
	})

	// MCP server (stdio transport).
	mcpSrv := api.NewMCPServer(api.MCPDeps{Store: store})
	stdioSrv := server.NewStdioServer(mcpSrv)
	g.Go(func() error {
		if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
		return nil
	})
	slog.Info("MCP server started (stdio transport)")

	// HTTP server.
	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "crisp listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// persistingTicker wraps the engine's Tick with an archive write-through so
// countdowns and timeout-driven transitions survive a restart.
type persistingTicker struct {
	orch    *interview.Orchestrator
	store   *session.Store
	archive *storage.Archive
}

func (t *persistingTicker) Tick(ctx context.Context, sessionID string) error {
	err := t.orch.Tick(ctx, sessionID)
	if perr := t.archive.PersistSession(t.store, sessionID); perr != nil {
		slog.Error("persisting session after tick failed", "session_id", sessionID, "error", perr)
	}
	return err
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("crisp is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop crisp (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to crisp (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	running := false
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Model", "%s", cfg.Gateway.Model)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)

	if running {
		apiC, err := newAPIClient()
		if err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if sessResp, err := apiC.get(ctx, "/sessions"); err == nil {
				var sessions []struct {
					Status string `json:"status"`
				}
				if decodeJSON(sessResp, &sessions) == nil {
					open := 0
					for _, s := range sessions {
						if s.Status == "in_progress" {
							open++
						}
					}
					printStatus("Sessions", "%d total, %d in progress", len(sessions), open)
				}
			}
			if candResp, err := apiC.get(ctx, "/candidates"); err == nil {
				var candidates []struct{}
				if decodeJSON(candResp, &candidates) == nil {
					printStatus("Candidates", "%d", len(candidates))
				}
			}
		}
	}

	return nil
}
