// Command yokeflowd runs the YokeFlow core engine: HTTP/WebSocket control
// plane, Session Orchestrator, Tool Surface, and every supporting
// component wired together against a single PostgreSQL database.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/innerline/yokeflow2-sub000/pkg/api"
	"github.com/innerline/yokeflow2-sub000/pkg/config"
	"github.com/innerline/yokeflow2-sub000/pkg/database"
	"github.com/innerline/yokeflow2-sub000/pkg/events"
	"github.com/innerline/yokeflow2-sub000/pkg/orchestrator"
	"github.com/innerline/yokeflow2-sub000/pkg/sandbox"
	"github.com/innerline/yokeflow2-sub000/pkg/store"
	"github.com/innerline/yokeflow2-sub000/pkg/toolsurface"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "path to configuration directory")
	workspaceRoot := flag.String("workspace-root", getEnv("WORKSPACE_ROOT", "./workspaces"), "host directory under which each project's sandbox files live")
	agentRunnerCmd := flag.String("agent-runner", getEnv("AGENT_RUNNER_CMD", ""), "path to the Agent Runner executable (spec C8)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		log.Fatalf("failed to initialize configuration: %v", err)
	}

	dbCfg, err := database.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("failed to load database config: %v", err)
	}

	dbClient, err := database.NewClient(ctx, dbCfg)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("error closing database client", "error", err)
		}
	}()

	st := store.New(dbClient)
	bus := events.NewBus()
	connManager := events.NewConnectionManager(bus, 10*time.Second)

	sandboxMgr := sandbox.NewManager(cfg.Sandbox, *workspaceRoot, sandbox.NewBlocklist())
	surface := toolsurface.New(st, sandboxMgr, bus, cfg)

	if *agentRunnerCmd == "" {
		log.Fatalf("agent runner not configured: pass --agent-runner or set AGENT_RUNNER_CMD")
	}
	runner := &orchestrator.ExecLauncher{Command: *agentRunnerCmd}

	// Reviewer is left unwired: the agent's LLM client internals are out
	// of scope (spec NON-GOALS), so RequestDeepReview has nothing to call
	// until an external reviewer is configured. The Quality Pipeline still
	// runs its quick checks and epic-retest scheduling without it.
	orch := orchestrator.New(orchestrator.Options{
		Store:   st,
		Sandbox: sandboxMgr,
		Bus:     bus,
		Config:  cfg,
		Runner:  runner,
	}, surface)

	server := api.NewServer(orch, st, connManager)

	addr := ":" + getEnv("HTTP_PORT", "8080")
	slog.Info("starting yokeflowd", "addr", addr, "config_dir", filepath.Clean(*configDir))

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		slog.Error("server error", "error", err)
	}

	orch.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("error during server shutdown", "error", err)
	}
}
