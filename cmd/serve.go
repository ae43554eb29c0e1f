package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/pubkytree/internal/server"
	"github.com/desertthunder/pubkytree/internal/shared"
	"github.com/desertthunder/pubkytree/internal/web"
)

const shutdownTimeout = 5 * time.Second

// Serve runs the public page server until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}

	srv := &http.Server{Handler: newPublicRouter(r), ReadHeaderTimeout: 10 * time.Second}

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return r.serve(ctx, srv, ln)
}

// newPublicRouter serves the JSON and HTML public pages from one viewer.
func newPublicRouter(r *Runner) http.Handler {
	viewer := r.Viewer()
	logger := shared.WithLogger(r.logger, "component", "http")
	router := server.NewPublicRouter(viewer, r.metrics, logger)
	router.Handler(web.NewProfilePage(viewer, logger))
	return router
}

// serve blocks until ctx ends or the server fails, then shuts down gracefully.
func (r *Runner) serve(ctx context.Context, srv *http.Server, ln net.Listener) error {
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Serve(ln)
	}()

	r.logger.Info("serving public pages", "addr", ln.Addr().String())

	select {
	case err := <-serverErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	r.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	<-serverErr
	return nil
}
