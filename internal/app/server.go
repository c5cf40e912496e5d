package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"wishlist-pricewatch/internal/api"
	"wishlist-pricewatch/internal/metrics"
	"wishlist-pricewatch/internal/storage"
)

// startAPI serves the read-only API and metrics when api.listen_addr is set.
// The returned func shuts the server down.
func (a *App) startAPI(store *storage.Store, m *metrics.Metrics) (func(), error) {
	addr := a.Config.API.ListenAddr
	if addr == "" {
		return func() {}, nil
	}

	handler := api.NewHandler(store, store, store, store, a.Logger)
	srv := &http.Server{
		Handler:           api.SetupRoutes(handler, m.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error().Err(err).Msg("api server stopped")
		}
	}()
	a.Logger.Info().Str("addr", ln.Addr().String()).Msg("api listening")

	timeout := a.Config.API.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("api shutdown")
		}
	}, nil
}
