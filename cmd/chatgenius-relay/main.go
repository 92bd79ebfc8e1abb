package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/Chiragadve/chatgenius/internal/config"
	"github.com/Chiragadve/chatgenius/internal/model/chat"
	"github.com/Chiragadve/chatgenius/internal/relay"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file, using system environment only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		log = log.Level(level)
	}

	store, err := relay.OpenStore(cfg.Server.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Server.DatabasePath).Msg("failed to open store")
	}
	defer store.Close()

	if err := seedDefaultChannel(ctx, store); err != nil {
		log.Fatal().Err(err).Msg("failed to seed default channel")
	}

	server := relay.NewServer(store, log)
	startServer(ctx, cfg.Server.Addr, server.Router(), log)
}

// seedDefaultChannel makes sure a fresh relay has somewhere to talk.
func seedDefaultChannel(ctx context.Context, store *relay.Store) error {
	channels, err := store.Channels(ctx)
	if err != nil {
		return err
	}
	if len(channels) > 0 {
		return nil
	}
	_, err = store.CreateChannel(ctx, chat.Channel{
		ID:          "general",
		Name:        "general",
		Description: "Default channel",
	})
	return err
}

func startServer(ctx context.Context, addr string, router http.Handler, log zerolog.Logger) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("relay listening")
	if err := runServer(ctx, srv); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
