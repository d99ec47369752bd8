package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"prestige_server/config"
	"prestige_server/events"
	"prestige_server/logging"
	"prestige_server/routes"
	"prestige_server/services"
	"prestige_server/supervisor"
)

func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the swipe consumer and the match scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts.Config)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	shutdownTracer, err := initTracer(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logging.Warn().Err(err).Msg("⚠️ Failed to flush traces")
		}
	}()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           newHandler(a, cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{})
	tree.AddAPIService(supervisor.NewHTTPServerService(server, 10*time.Second))
	if cfg.Matching.Interval > 0 {
		tree.AddBackgroundService(services.NewMatchScheduler(a.runner, cfg.Matching.Interval))
	}
	if a.js != nil {
		tree.AddBackgroundService(events.NewSwipeConsumer(a.js, a.preferences,
			cfg.NATS.SwipeStream, cfg.NATS.SwipeSubject, cfg.NATS.DurableName))
	}

	logging.Info().Str("port", cfg.Server.Port).Str("backend", cfg.Store.Backend).Msg("🚀 Starting server")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logging.Info().Msg("👋 Server stopped")
	return nil
}

func newHandler(a *app, cfg *config.Config) http.Handler {
	r := mux.NewRouter()
	routes.RegisterRoutes(r)
	routes.RegisterPreferenceRoutes(r, a.preferences, cfg.Server.RequestTimeout)
	routes.RegisterMatchRoutes(r, a.runner, a.publisher, cfg.Server.RequestTimeout)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(r)

	return otelhttp.NewHandler(corsHandler, "prestige-http")
}
