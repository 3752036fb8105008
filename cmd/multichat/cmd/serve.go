package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mfenderov/multichat/internal/httpapi"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP chat server",
	Long: `Start the HTTP server.

Routes:
  POST   /ask                     chat endpoint {message, language?}
  GET    /health                  liveness
  GET    /metrics                 Prometheus metrics
  POST   /admin/scan              rebuild a knowledge base (needs http.admin_token)
  GET    /admin/knowledge         snapshot metadata
  DELETE /admin/cache/responses   clear cached replies
  DELETE /admin/cache/knowledge   clear snapshots

Example:
  multichat serve --addr :8080`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides http.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadedConfig()
	if err != nil {
		return err
	}
	if cfg.Log.Format == "json" {
		useJSONLogs()
	}
	if serveAddr != "" {
		cfg.HTTP.Addr = serveAddr
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.OpenAI.APIKey == "" {
		slog.Warn("no API key configured, chat requests will fail until openai.api_key is set")
	}
	if cfg.HTTP.AdminToken == "" {
		slog.Info("admin routes disabled, set http.admin_token to enable them")
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Chat:      a.chat,
		Scans:     a.scans,
		Responses: a.client,
		Knowledge: a.knowledge,
	}, httpapi.Config{
		AdminToken:      cfg.HTTP.AdminToken,
		UserHeader:      cfg.RateLimit.UserHeader,
		DefaultLanguage: cfg.Chat.DefaultLanguage,
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting HTTP server", "addr", cfg.HTTP.Addr)
		fmt.Fprintf(cmd.ErrOrStderr(), "Listening on %s\n", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		slog.Info("shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}
		return nil
	})

	return g.Wait()
}
