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

	"github.com/avetisov/parley/internal/api"
	"github.com/avetisov/parley/internal/catalog"
	"github.com/avetisov/parley/internal/config"
	"github.com/avetisov/parley/internal/conversation"
	"github.com/avetisov/parley/internal/executor"
	"github.com/avetisov/parley/internal/pool"
	"github.com/avetisov/parley/internal/storage"
	"github.com/avetisov/parley/internal/tools"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the parley server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running parley server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show parley system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "parley.pid")
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

func logLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// buildRegistry assembles the model allow-list from config. An empty
// allow-list admits every catalog model; an unset default lets the catalog
// pick its first standard-tier variant.
func buildRegistry(cfg config.Config, cat *catalog.Catalog) (*catalog.Registry, error) {
	var defaultSpec catalog.ModelSpec
	var err error
	if cfg.Models.Default != "" {
		defaultSpec, err = cat.ParseSpec(cfg.Models.Default)
		if err != nil {
			return nil, fmt.Errorf("parsing default model: %w", err)
		}
	} else {
		defaultSpec, err = cat.DefaultSpec(nil)
		if err != nil {
			return nil, fmt.Errorf("selecting default model: %w", err)
		}
	}

	ids := cfg.Models.AvailableModels()
	var available []catalog.ModelSpec
	if len(ids) == 0 {
		available = cat.SpecsForVendors(nil)
	} else {
		for _, id := range ids {
			spec, err := cat.ParseSpec(id)
			if err != nil {
				return nil, fmt.Errorf("parsing available model %q: %w", id, err)
			}
			available = append(available, spec)
		}
	}

	return catalog.NewRegistry(cat, defaultSpec, available)
}

// buildToolRegistry registers the built-in tools. Web search is only
// available when a search API key is configured.
func buildToolRegistry(cfg config.Config) *tools.Registry {
	reg := tools.NewRegistry(tools.Calculator())
	if cfg.Search.APIKey != "" {
		reg.Register(tools.WebSearch(tools.NewSearchClient(cfg.Search.APIKey)))
	}
	return reg
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "parley version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.Log.Level),
	})))

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("parley is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("parley is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cat, err := catalog.LoadFile(cfg.Models.CatalogPath)
	if err != nil {
		return fmt.Errorf("loading model catalog: %w", err)
	}

	registry, err := buildRegistry(cfg, cat)
	if err != nil {
		return err
	}
	slog.Info("model registry ready",
		"default", registry.Default().String(),
		"available", len(registry.Available()),
	)

	var client *executor.Client
	if cfg.Executor.BaseURL != "" {
		client = executor.NewClientWithBaseURL(cfg.Executor.APIKey, cfg.Executor.BaseURL)
	} else {
		client = executor.NewClient(cfg.Executor.APIKey)
	}

	toolReg := buildToolRegistry(cfg)
	slog.Info("tools registered", "names", toolReg.Names())

	modelPool := pool.New(registry, toolReg, client)

	// Classifiers only exist when auto-routing is on; nil routers make
	// conversations skip the routing phases.
	var router *conversation.ModelClassifier
	var toolRouter *conversation.ToolClassifier
	if cfg.Router.AutoRoute {
		fastSpec := registry.FastSpec()
		if cfg.Router.FastModel != "" {
			fastSpec, err = registry.ResolveIdentifier(cfg.Router.FastModel)
			if err != nil {
				return fmt.Errorf("resolving router fast model: %w", err)
			}
		}
		router, err = conversation.NewModelClassifier(fastSpec, registry, registry.IDs(), modelPool)
		if err != nil {
			return fmt.Errorf("building model router: %w", err)
		}
		toolRouter = conversation.NewToolClassifier(fastSpec, toolReg, modelPool)
		slog.Info("auto-routing enabled", "fast_model", fastSpec.String())
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	deps := api.MCPDeps{
		Deps: api.Deps{
			Registry:   registry,
			Pool:       modelPool,
			Store:      store,
			Router:     router,
			ToolRouter: toolRouter,
		},
		Tools:   toolReg,
		KVStore: store,
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewHandler(deps.Deps),
	}

	stdioSrv := server.NewStdioServer(api.NewMCPServer(deps))

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "parley listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := stdioSrv.Listen(gCtx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	slog.Info("MCP server started (stdio transport)")

	return g.Wait()
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
		printError("parley is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop parley (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to parley (PID %d)", pid)
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

	if running {
		modelsResp, err := client.Get(serverURL + "/v1/models")
		if err == nil {
			var models struct {
				Models  []string `json:"models"`
				Default string   `json:"default"`
			}
			if decodeJSON(modelsResp, &models) == nil {
				printStatus("Default model", "%s", models.Default)
				printStatus("Available models", "%d", len(models.Models))
			}
		}
	} else if cfg.Models.Default != "" {
		printStatus("Default model", "%s", cfg.Models.Default)
	} else {
		printStatus("Default model", "catalog default")
	}

	if cfg.Router.AutoRoute {
		printStatus("Auto-routing", "enabled")
	} else {
		printStatus("Auto-routing", "disabled")
	}
	if cfg.Search.APIKey != "" {
		printStatus("Web search", "enabled")
	} else {
		printStatus("Web search", "disabled (no search API key)")
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
