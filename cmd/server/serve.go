package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/ashureev/gita-reflect/internal/agent"
	"github.com/ashureev/gita-reflect/internal/api"
	"github.com/ashureev/gita-reflect/internal/config"
	"github.com/ashureev/gita-reflect/internal/health"
	"github.com/ashureev/gita-reflect/internal/reflection"
	"github.com/ashureev/gita-reflect/internal/store"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and gRPC health servers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := setupLogger(os.Stdout, cfg)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting server", "port", cfg.Port, "grpc_port", cfg.GRPCPort, "storage", cfg.Storage.Driver, "ai_provider", cfg.AI.Provider)

	storage, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := storage.Close(); closeErr != nil {
			slog.Error("Failed to close storage", "error", closeErr)
		}
	}()

	responder, err := agent.New(ctx, agent.Config{
		Provider: cfg.AI.Provider,
		APIKey:   cfg.AI.APIKey(),
		Model:    modelFor(cfg.AI),
		BaseURL:  baseURLFor(cfg.AI),
	})
	if err != nil {
		return fmt.Errorf("initialize AI responder: %w", err)
	}
	slog.Info("AI responder initialized", "responder", responder.Name(), "timeout", cfg.AI.Timeout)

	transcripts, err := agent.NewConversationLogger(agent.ConversationLogConfig{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize conversation logger: %w", err)
	}
	defer func() { _ = transcripts.Close() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc := reflection.NewService(storage.Conversations, storage.Verses, agent.WithTimeout(responder, cfg.AI.Timeout), reflection.Options{
		VerseOverwrite: cfg.VerseOverwrite,
		Transcripts:    transcripts,
		Metrics:        reflection.NewMetrics(reg),
	})

	probe := health.NewProbe(storage.Conversations, cfg.HealthProbeInterval)
	probe.Start(ctx)

	limiter := api.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration)
	defer limiter.Stop()

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: api.NewRouter(api.Dependencies{
			Service: svc,
			Verses:  storage.Verses,
			Probe:   probe,
			Storage: api.StorageInfo{
				Driver:         storage.Driver,
				Fallback:       storage.Fallback,
				FallbackReason: storage.FallbackReason,
			},
			Limiter:        limiter,
			Gatherer:       reg,
			AllowedOrigins: cfg.AllowedOrigins,
			MaxBodySize:    cfg.MaxRequestBodySize,
			RequestLogging: true,
		}),
		ReadTimeout: 30 * time.Second,
		// Turns wait on the AI provider.
		WriteTimeout: cfg.AI.Timeout + 15*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	var (
		grpcServer *grpc.Server
		grpcLis    net.Listener
	)
	if cfg.GRPCPort != "" {
		grpcLis, err = net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
		grpcServer = grpc.NewServer()
		probe.Register(grpcServer)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if grpcServer != nil {
		g.Go(func() error {
			slog.Info("gRPC health server listening", "addr", grpcLis.Addr().String())
			if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")
		probe.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if grpcServer != nil {
			stopGRPC(shutdownCtx, grpcServer)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("Server stopped successfully")
	return nil
}

type grpcStopper interface {
	GracefulStop()
	Stop()
}

// stopGRPC drains s, forcing it closed once ctx expires. Open health Watch
// streams otherwise hold GracefulStop forever.
func stopGRPC(ctx context.Context, s grpcStopper) {
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("gRPC graceful stop timed out, forcing close")
		s.Stop()
		<-done
	}
}

func openStorage(ctx context.Context, cfg *config.Config) (*store.InitResult, error) {
	res, err := store.Open(ctx, store.Options{
		Driver:        cfg.Storage.Driver,
		DBPath:        cfg.Storage.DBPath,
		AllowFallback: cfg.Storage.Fallback,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize storage: %w", err)
	}
	if res.Fallback {
		slog.Warn("Using in-memory storage, conversations will not survive a restart", "reason", res.FallbackReason)
	} else {
		slog.Info("Storage ready", "driver", res.Driver)
	}
	return res, nil
}

func modelFor(c config.AIConfig) string {
	if c.Provider == agent.ProviderOpenAI {
		return c.OpenAIModel
	}
	return c.GeminiModel
}

func baseURLFor(c config.AIConfig) string {
	if c.Provider == agent.ProviderOpenAI {
		return c.OpenAIBaseURL
	}
	return ""
}
