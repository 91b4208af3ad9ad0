package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/neopilot-ai/neopilot/communityworkflows"
	"github.com/neopilot-ai/neopilot/internal/approval"
	"github.com/neopilot-ai/neopilot/internal/checkpoint"
	"github.com/neopilot-ai/neopilot/internal/config"
	"github.com/neopilot-ai/neopilot/internal/controlplane"
	"github.com/neopilot-ai/neopilot/internal/infrastructure/sqlite"
	"github.com/neopilot-ai/neopilot/internal/log"
	"github.com/neopilot-ai/neopilot/internal/pubsub"
	"github.com/neopilot-ai/neopilot/internal/security"
	"github.com/neopilot-ai/neopilot/internal/server"
	"github.com/neopilot-ai/neopilot/internal/session"
	"github.com/neopilot-ai/neopilot/internal/telemetry"
	"github.com/neopilot-ai/neopilot/internal/token"
	"github.com/neopilot-ai/neopilot/internal/workflow"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the workflow execution service",
	Long: `Run the workflow execution service.

The service hosts sessions and the execution protocol only. It ships no
planner: the reasoning layer that decides each next action is supplied by
the embedding process through server.Config.Planner, or sessions are driven
externally over the stream.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			log.ErrorErr(log.CatServer, "Telemetry shutdown failed", err)
		}
	}()

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	store, closeStore, err := buildStore(cfg.Checkpoint)
	if err != nil {
		return err
	}
	defer closeStore()

	pipeline, err := buildPipeline(cfg.Security)
	if err != nil {
		return err
	}

	broker := pubsub.NewBroker[session.Event]()
	defer broker.Shutdown()

	manager := session.NewManager(session.ManagerConfig{
		Registry:          registry,
		Store:             store,
		Pipeline:          pipeline,
		Classifier:        approval.NewClassifier(cfg.Approval.PrivilegedVariants),
		Broker:            broker,
		ArchiveTTL:        cfg.Session.ArchiveTTL,
		OutboxBuffer:      cfg.Session.OutboxBuffer,
		ContextCategories: cfg.Approval.ContextCategories,
	})

	monitor := controlplane.NewMonitor(controlplane.MonitorConfig{
		Policy: controlplane.Policy{
			HeartbeatInterval: cfg.Liveness.HeartbeatInterval,
			MissTolerance:     cfg.Liveness.MissTolerance,
		},
		CheckInterval: cfg.Liveness.CheckInterval,
		EventBus:      broker,
		Stopper:       manager,
	})
	if err := monitor.Start(ctx); err != nil {
		return fmt.Errorf("starting liveness monitor: %w", err)
	}
	defer monitor.Stop()

	issuer, err := token.NewIssuer(token.IssuerConfig{
		SigningKey: cfg.Token.SigningKey,
		TTL:        cfg.Token.TTL,
	})
	if err != nil {
		return err
	}
	if cfg.Token.SigningKey == "" {
		log.Warn(log.CatServer, "No token signing key configured, using an ephemeral key")
	}

	srv := server.New(server.Config{
		Server:   cfg.Server,
		Manager:  manager,
		Registry: registry,
		Issuer:   issuer,
		Monitor:  monitor,
	})

	errCh := make(chan error, 1)
	log.SafeGo("cmd.serve", func() {
		errCh <- srv.ListenAndServe()
	})

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info(log.CatServer, "Shutting down")
	manager.Shutdown("server_shutdown")
	if err := srv.Shutdown(context.Background()); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return <-errCh
}

func buildRegistry(cfg config.Config) (*workflow.Registry, error) {
	registry, err := workflow.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("loading workflow definitions: %w", err)
	}
	registry.LoadCommunity(&workflow.CommunitySource{
		FS:         communityworkflows.RegistryFS(),
		EnabledIDs: cfg.Workflow.CommunityEnabled,
	})
	if err := registry.LoadUserDir(cfg.Workflow.UserDir); err != nil {
		return nil, fmt.Errorf("loading user workflow definitions: %w", err)
	}
	return registry, nil
}

func buildStore(cfg config.CheckpointConfig) (checkpoint.Store, func(), error) {
	if cfg.DBPath == "" {
		log.Warn(log.CatDB, "No checkpoint database path configured, using the in-memory store")
		return checkpoint.NewMemoryStore(), func() {}, nil
	}

	db, err := sqlite.NewDB(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening checkpoint database: %w", err)
	}

	retry := checkpoint.DefaultRetryConfig()
	if cfg.RetryMaxElapsed > 0 {
		retry.MaxElapsedTime = cfg.RetryMaxElapsed
	}

	closeDB := func() {
		if err := db.Close(); err != nil {
			log.ErrorErr(log.CatDB, "Closing checkpoint database failed", err)
		}
	}
	return checkpoint.WithRetry(db.CheckpointStore(), retry), closeDB, nil
}

func buildPipeline(cfg config.SecurityConfig) (*security.Pipeline, error) {
	if cfg.PolicyPath == "" {
		return security.NewPipeline(security.DefaultPolicy()), nil
	}
	policy, err := security.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("loading security policy: %w", err)
	}
	return security.NewPipeline(policy), nil
}
