package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/equaliser/intake-agent/internal/dashboard"
	"github.com/equaliser/intake-agent/internal/intake"
	"github.com/equaliser/intake-agent/internal/knowledge"
	"github.com/equaliser/intake-agent/internal/progress"
	"github.com/equaliser/intake-agent/internal/report"
	"github.com/equaliser/intake-agent/internal/server"
)

// shutdownTimeout bounds the wait for in-flight requests on shutdown.
const shutdownTimeout = 30 * time.Second

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the intake HTTP server",
	Long: `Starts the intake server: the session REST API, the report endpoints,
the chat dashboard with its websocket, and, when configured, the idle
session janitor and the knowledge directory watcher.`,
	Args: cobra.NoArgs,
	RunE: runServer,
}

func init() {
	serverCmd.Flags().Int("port", 0, "port to listen on (overrides server.port)")
	serverCmd.Flags().Bool("watch", true, "re-index the knowledge directory as files change")
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	port, _ := cmd.Flags().GetInt("port")
	watch, _ := cmd.Flags().GetBool("watch")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	a, err := newApp(ctx, cfg, logger, appOptions{Database: true})
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.New(server.Config{
		Port:           cfg.Server.Port,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, logger.Named("http"))
	srv.Routes(func(r chi.Router) {
		intake.RegisterRoutes(r, a.service)
		report.RegisterRoutes(r, a.reports)
	})
	// The websocket outlives the request timeout, so the dashboard is
	// mounted on the bare router.
	dashboard.New(a.service, a.usage, cfg.Server.AllowedOrigins, logger.Named("dashboard")).
		RegisterRoutes(srv.Router())

	var janitor *server.Janitor
	if ttl := cfg.Server.SessionTTL(); ttl > 0 {
		if janitor, err = server.NewJanitor(a.service, ttl, cfg.Server.JanitorInterval, logger.Named("janitor")); err != nil {
			return err
		}
	}
	var watcher *knowledge.Watcher
	if watch && a.knowledge != nil {
		ix := newIndexer(cfg, a.knowledge, progress.Nop{}, logger)
		if watcher, err = knowledge.NewWatcher(ix); err != nil {
			return fmt.Errorf("watching knowledge directory: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if janitor != nil {
		g.Go(func() error { return janitor.Run(gctx) })
	}
	if watcher != nil {
		g.Go(func() error {
			if err := watcher.Run(gctx); err != nil {
				// The server keeps running on the index it has.
				logger.Warn("knowledge watcher stopped", zap.Error(err))
			}
			return nil
		})
	}

	logger.Info("intake server starting",
		zap.String("version", Version),
		zap.Int("port", cfg.Server.Port),
		zap.String("session_store", string(cfg.Server.SessionStore)),
		zap.String("database", cfg.DatabasePath()),
		zap.Int("knowledge_chunks", a.knowledgeCount()))

	return g.Wait()
}
