package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/orchid-dev/orchid/internal/agent"
	"github.com/orchid-dev/orchid/internal/config"
	"github.com/orchid-dev/orchid/internal/errors"
	"github.com/orchid-dev/orchid/internal/logging"
	"github.com/orchid-dev/orchid/internal/orchestrator"
	"github.com/orchid-dev/orchid/internal/scheduler"
	"github.com/orchid-dev/orchid/internal/sink"
	"github.com/orchid-dev/orchid/internal/spool"
	"github.com/orchid-dev/orchid/internal/state"
	"github.com/orchid-dev/orchid/internal/task"
	"github.com/orchid-dev/orchid/internal/workflow"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the orchestration engine",
	Long: `Start the engine: recover persisted tasks and schedules, watch the
spool directory if enabled, and serve the HTTP API.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	dataDir := cfg.DataDir()
	logger, err := logging.NewLogger(dataDir, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}
	defer func() { _ = logger.Close() }()

	store, err := state.Open(dataDir, logger)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	sched := scheduler.New(dataDir, logger)

	agents, err := buildAgents(cfg, logger)
	if err != nil {
		return err
	}
	workflows := workflow.NewRegistry()
	if err := workflow.RegisterBuiltins(workflows); err != nil {
		return err
	}
	resultSink, closeSinks, err := buildSinks(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	engine, err := orchestrator.New(orchestrator.Options{
		Store:         store,
		Scheduler:     sched,
		Agents:        agents,
		Workflows:     workflows,
		CheckInterval: cfg.Monitor.CheckInterval(),
		Sink:          resultSink,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	if err := engine.Start(); err != nil {
		return fmt.Errorf("failed to recover engine state: %w", err)
	}
	defer engine.Close()

	if cfg.Spool.Enabled {
		watcher, err := spool.New(cfg.SpoolDir(), engineSubmitter{engine}, logger)
		if err != nil {
			return fmt.Errorf("failed to start spool watcher: %w", err)
		}
		watcher.Start()
		defer watcher.Stop()
	}

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: apiHandler(engine),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("engine listening", "addr", cfg.Server.Addr)
		fmt.Printf("orchid engine listening on %s (data: %s)\n", cfg.Server.Addr, dataDir)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// engineSubmitter adapts the engine to the spool watcher's Submitter.
type engineSubmitter struct {
	engine *orchestrator.Engine
}

func (s engineSubmitter) Submit(ctx context.Context, def *task.Definition) (string, error) {
	acc, err := s.engine.Submit(ctx, def)
	if err != nil {
		return "", err
	}
	return acc.TaskID, nil
}

// buildAgents wires the dispatch pool: remote HTTP agents from config
// first, then the built-in local agents for any (type, default) slot still
// empty.
func buildAgents(cfg *config.Config, logger *logging.Logger) (*agent.Registry, error) {
	agents := agent.NewRegistry()

	for _, route := range cfg.Agents {
		if err := agents.Add(task.Type(route.Type), route.ID, agent.NewHTTPAgent(route.Endpoint, nil)); err != nil {
			return nil, fmt.Errorf("failed to register agent %s/%s: %w", route.Type, route.ID, err)
		}
		logger.Info("remote agent registered", "type", route.Type, "endpoint", route.Endpoint)
	}

	addDefault := func(tt task.Type, a agent.Agent) error {
		if _, err := agents.Resolve(tt, agent.DefaultAgentID); err == nil {
			return nil
		}
		return agents.Add(tt, agent.DefaultAgentID, a)
	}

	if err := addDefault(task.TypeTesting, agent.NewTestingAgent()); err != nil {
		return nil, err
	}
	if err := addDefault(task.TypeSolutionValidation, agent.NewValidationAgent()); err != nil {
		return nil, err
	}
	if cfg.Sandbox.URL != "" {
		sandbox := agent.NewHTTPSandbox(cfg.Sandbox.URL, nil)
		if err := addDefault(task.TypeErrorRecreation, agent.NewRecreationAgent(sandbox, cfg.Sandbox.Timeout())); err != nil {
			return nil, err
		}
	}
	return agents, nil
}

// buildSinks assembles the configured result routes into one router.
func buildSinks(cfg *config.Config, logger *logging.Logger) (sink.Sink, func(), error) {
	router := sink.NewRouter()
	var closers []func() error

	for _, route := range cfg.Sinks {
		var s sink.Sink
		switch route.Kind {
		case "log":
			s = sink.NewLogSink(logger)
		case "file":
			fs := sink.NewFileSink(route.Path)
			closers = append(closers, fs.Close)
			s = fs
		default:
			return nil, nil, fmt.Errorf("unknown sink kind %q", route.Kind)
		}
		if err := router.Route(route.Pattern, s); err != nil {
			return nil, nil, err
		}
	}

	closeAll := func() {
		for _, c := range closers {
			_ = c()
		}
	}
	return router, closeAll, nil
}

// apiHandler exposes the engine's transport surface.
func apiHandler(engine *orchestrator.Engine) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /orchestrate", func(w http.ResponseWriter, r *http.Request) {
		var def task.Definition
		if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		acc, err := engine.Submit(r.Context(), &def)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, errors.ErrInvalidTaskDefinition) {
				status = http.StatusBadRequest
			}
			http.Error(w, err.Error(), status)
			return
		}
		writeJSON(w, http.StatusAccepted, acc)
	})

	mux.HandleFunc("POST /resume", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			TaskID string `json:"taskId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := engine.Resume(r.Context(), req.TaskID); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, errors.ErrTaskNotFound) {
				status = http.StatusNotFound
			}
			http.Error(w, err.Error(), status)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"taskId": req.TaskID,
			"status": "scheduled",
		})
	})

	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, engine.Status())
	})

	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, engine.Metrics())
	})

	mux.HandleFunc("GET /subscribe", func(w http.ResponseWriter, r *http.Request) {
		serveSubscription(engine, w, r)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
