package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/marrasen/jrpc"
	"github.com/marrasen/jrpc/expose"
	"github.com/marrasen/jrpc/internal/config"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the demo methods",
	Long: `The serve command exposes the demo methods over WebSocket at /ws, SSE at /sse/
and plain HTTP POST at /rpc. Prometheus metrics are served at /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.Addr = serveAddr
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, newLogger(cfg))
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from JRPC_ADDR)")
}

// newMux builds the routes of jrpcd serve around server.
func newMux(server *jrpc.Server, counter *Counter, opts jrpc.Options, reg *prometheus.Registry) (*http.ServeMux, error) {
	httpEngine := jrpc.New(nil, opts)
	if err := registerDemo(httpEngine, counter); err != nil {
		return nil, err
	}

	server.OnConnect(func(ctx context.Context, conn *jrpc.Conn) error {
		return registerDemo(conn, counter)
	})

	sse := jrpc.NewSSEHandler(server)

	mux := http.NewServeMux()
	mux.Handle("/ws", server)
	mux.Handle("/sse", http.StripPrefix("/sse", sse))
	mux.Handle("/sse/", http.StripPrefix("/sse", sse))
	mux.Handle("/rpc", jrpc.NewHTTPHandler(httpEngine))
	mux.Handle("/api/", http.StripPrefix("/api", expose.NewRESTHandler(counter.Object)))
	if reg != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	return mux, nil
}

func serve(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	opts := jrpc.Options{
		Logger:           logger,
		BatchConcurrency: cfg.BatchLimit,
	}
	var reg *prometheus.Registry
	if cfg.Metrics {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		opts.Metrics = jrpc.NewMetrics(reg)
	}

	server := jrpc.NewServer(jrpc.ServerOptions{Engine: opts})
	server.OnDisconnect(func(ctx context.Context, conn *jrpc.Conn) {
		logger.Debug().Uint64("conn", conn.ID()).Msg("peer left")
	})

	counter := NewCounter()
	counter.Notify(server.Broadcast)

	mux, err := newMux(server, counter, opts, reg)
	if err != nil {
		return err
	}

	if cfg.Tick > 0 {
		go counter.Run(ctx, cfg.Tick, logger)
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("jrpcd listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	server.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
