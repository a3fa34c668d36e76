package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxpilot/internal/agent"
	"github.com/teemow/inboxpilot/internal/capability"
	"github.com/teemow/inboxpilot/internal/catalog"
	"github.com/teemow/inboxpilot/internal/config"
	"github.com/teemow/inboxpilot/internal/fault"
	"github.com/teemow/inboxpilot/internal/github"
	"github.com/teemow/inboxpilot/internal/gmail"
	"github.com/teemow/inboxpilot/internal/instrumentation"
	"github.com/teemow/inboxpilot/internal/llm"
	"github.com/teemow/inboxpilot/internal/logging"
	"github.com/teemow/inboxpilot/internal/server"
	"github.com/teemow/inboxpilot/internal/tools/agent_tools"
	"github.com/teemow/inboxpilot/internal/tools/common"
)

// Service names reported by the services-status endpoint, in response
// order. "openai" is the operator-facing name of the llm backend.
var statusServices = []string{"gmail", "github", "openai"}

func newServeCmd() *cobra.Command {
	var (
		configPath  string
		transport   string
		addr        string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the query service",
		Long: `Start the inboxpilot query service.

Supports two transports:
  - http: HTTP API on /api/query and /api/services/status, with a
    dedicated Prometheus metrics listener (default)
  - stdio: MCP server over standard input/output for AI assistants

Credentials for Gmail, GitHub, and the language model come from the
config file or INBOXPILOT_* environment variables. A service with
incomplete credentials is left unconfigured; queries still run against
the remaining services and /api/services/status reports the gap.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.Metrics.Addr = metricsAddr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cfg, transport)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to config file (default: ~/.config/inboxpilot/config.yaml)")
	cmd.Flags().StringVar(&transport, "transport", "http", "Transport type: http or stdio")
	cmd.Flags().StringVar(&addr, "addr", server.DefaultAPIAddr, "API server address (http transport)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address (http transport)")

	return cmd
}

func runServe(cfg *config.Config, transport string) error {
	logging.Setup(cfg.Logging.Level, cfg.Logging.JSON)

	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(shutdownCtx); err != nil && transport != "stdio" {
			slog.Error("instrumentation shutdown", logging.Err(err))
		}
	}()

	components, err := buildComponents(shutdownCtx, cfg, provider)
	if err != nil {
		return err
	}

	switch transport {
	case "http":
		return runHTTPServer(shutdownCtx, cfg, components, provider)
	case "stdio":
		return runStdioServer(components, provider, instrConfig)
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: http, stdio)", transport)
	}
}

// components holds the wired core of the service, shared by the HTTP
// and stdio transports and by the one-shot ask command.
type components struct {
	registry     *capability.Registry
	orchestrator *agent.Orchestrator
	gmailClient  *gmail.Client
	githubClient *github.Client
	mailAccount  string
	readiness    config.ServiceReadiness
}

// buildComponents wires adapters, capability registry, planner, and
// orchestrator from the configuration. Missing credentials leave the
// affected service out instead of failing startup.
func buildComponents(ctx context.Context, cfg *config.Config, provider *instrumentation.Provider) (*components, error) {
	readiness := cfg.Readiness()
	c := &components{readiness: readiness}

	var mailbox catalog.Mailbox
	if readiness.Gmail {
		client, err := gmail.NewClient(ctx, gmail.Config{
			ClientID:     cfg.Gmail.ClientID,
			ClientSecret: cfg.Gmail.ClientSecret,
			RefreshToken: cfg.Gmail.RefreshToken,
			Account:      cfg.Gmail.Account,
		})
		if err != nil {
			return nil, fmt.Errorf("creating gmail client: %w", err)
		}
		c.gmailClient = client
		c.mailAccount = cfg.Gmail.Account
		mailbox = client
	} else {
		slog.Warn("gmail credentials incomplete, mailbox capabilities disabled")
	}

	var repoHost catalog.RepoHost
	if readiness.GitHub {
		client, err := github.NewClient(github.Config{
			Token:    cfg.GitHub.Token,
			Username: cfg.GitHub.Username,
		})
		if err != nil {
			return nil, fmt.Errorf("creating github client: %w", err)
		}
		c.githubClient = client
		repoHost = client
	} else {
		slog.Warn("github token missing, repository capabilities disabled")
	}

	c.registry = capability.NewRegistry()
	if err := catalog.Register(c.registry, mailbox, repoHost); err != nil {
		return nil, fmt.Errorf("registering capabilities: %w", err)
	}

	var completer llm.Completer
	if readiness.LLM {
		client, err := llm.New(llm.Config{
			APIKey:    cfg.LLM.APIKey,
			Model:     cfg.LLM.Model,
			BaseURL:   cfg.LLM.BaseURL,
			MaxTokens: cfg.LLM.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("creating llm client: %w", err)
		}
		completer = client
	} else {
		slog.Warn("llm api key missing, queries will fail until it is configured")
		completer = unavailableCompleter{}
	}

	var observer agent.Observer
	if provider != nil && provider.Enabled() {
		observer = agent.NewMetricsObserver(provider.Metrics())
	}

	c.orchestrator = agent.NewOrchestrator(
		c.registry,
		agent.NewLLMPlanner(completer, c.registry),
		agent.Options{
			MaxRounds:    cfg.Planner.MaxRounds,
			RoundTimeout: cfg.Planner.RoundTimeout,
			StepTimeout:  cfg.Planner.StepTimeout,
			RetryBackoff: cfg.Planner.RetryBackoff,
		},
		observer,
	)
	return c, nil
}

func runHTTPServer(ctx context.Context, cfg *config.Config, c *components, provider *instrumentation.Provider) error {
	sc := server.NewServerContext(ctx, c.orchestrator)
	registerProbes(sc, c)
	defer func() {
		if err := sc.Shutdown(); err != nil {
			slog.Error("server context shutdown", logging.Err(err))
		}
	}()

	var metrics *instrumentation.Metrics
	if provider.Enabled() {
		metrics = provider.Metrics()
	}

	apiServer, err := server.NewAPIServer(sc, server.APIServerConfig{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Services:     statusServices,
		Metrics:      metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	var metricsServer *server.MetricsServer
	if cfg.Metrics.Enabled && provider.Enabled() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    cfg.Metrics.Addr,
			Enabled:                 true,
			InstrumentationProvider: provider,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		go func() {
			if err := metricsServer.Start(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server stopped", logging.Err(err))
			}
		}()
	}

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := apiServer.Start(); err != nil && err != http.ErrServerClosed {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("API server stopped with error: %w", err)
		}
		return nil
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := apiServer.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("error shutting down API server: %w", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(drainCtx); err != nil {
			slog.Error("metrics server shutdown", logging.Err(err))
		}
	}
	return nil
}

func runStdioServer(c *components, provider *instrumentation.Provider, instrConfig instrumentation.Config) error {
	mcpSrv := mcpserver.NewMCPServer("inboxpilot", version,
		mcpserver.WithToolCapabilities(true),
	)

	var instr common.Instrumentation
	if provider != nil && provider.Enabled() {
		instr = common.Instrumentation{
			Metrics:     provider.Metrics(),
			AuditLogger: instrumentation.NewAuditLoggerWithConfig(nil, instrConfig.AuditLogging),
			Account:     c.mailAccount,
		}
	}

	if err := agent_tools.RegisterAgentTools(mcpSrv, c.registry, c.orchestrator, instr); err != nil {
		return err
	}

	if err := mcpserver.ServeStdio(mcpSrv); err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

// registerProbes wires the services-status endpoint. The llm probe is a
// credential check only; its first real use is the next planner round.
func registerProbes(sc *server.ServerContext, c *components) {
	if c.gmailClient != nil {
		sc.RegisterProbe("gmail", c.gmailClient)
	}
	if c.githubClient != nil {
		sc.RegisterProbe("github", c.githubClient)
	}
	if c.readiness.LLM {
		sc.RegisterProbe("openai", server.PingerFunc(func(context.Context) error { return nil }))
	}
}

// unavailableCompleter stands in when no language model is configured.
// Every query degrades into the orchestrator's credential-failure
// response instead of crashing the service.
type unavailableCompleter struct{}

func (unavailableCompleter) Complete(context.Context, string, string) (string, error) {
	return "", fault.New(fault.KindAuth, "language model not configured, set llm.api_key")
}
