package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-habit-session/authapi"
	"github.com/jrsteele09/go-habit-session/internal/config"
	"github.com/jrsteele09/go-habit-session/internal/logger"
	"github.com/jrsteele09/go-habit-session/server"
	"github.com/jrsteele09/go-habit-session/session"
	"github.com/jrsteele09/go-habit-session/sessions"
	"github.com/jrsteele09/go-habit-session/transport"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.New()
	if err != nil {
		return err
	}
	log.Logger = logger.New(c.GetEnv(), c.GetLogLevel())
	displayAppname(c.GetAppName())

	backend, closeBackend, err := newBackend(c)
	if err != nil {
		return err
	}
	defer closeBackend()

	store := sessions.NewStore(backend, c.GetSessionKey())

	refresher := &transport.RefresherSlot{}
	httpTransport := transport.NewRetry(transport.RequestID{Base: http.DefaultTransport}, refresher, log.Logger)
	api := authapi.New(c.GetAPIURL(), &http.Client{Timeout: c.GetHTTPTimeout(), Transport: httpTransport})
	manager, err := session.New(api, store,
		session.WithLogger(log.Logger),
		session.WithAuthCallTimeout(c.GetAuthCallTimeout()),
	)
	if err != nil {
		return err
	}
	refresher.Bind(manager)

	handler, err := server.New(c, manager, http.DefaultTransport)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go session.NewKeepalive(manager, c.GetRefreshInterval()).Run(ctx)

	srv := &http.Server{Addr: c.GetPort(), Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- listenAndServe(srv) }()

	select {
	case err := <-errCh:
		return err
	case <-waitForStopSignal():
	}
	cancel()
	return shutdown(srv)
}

// newBackend picks the storage for the persisted session, sealing it when a passphrase is configured.
func newBackend(c config.Config) (sessions.Backend, func(), error) {
	var backend sessions.Backend
	closeFn := func() {}

	switch c.GetStoreType() {
	case config.StoreTypeFile:
		backend = sessions.NewFileStore(c.GetDataFolder())
	case config.StoreTypeRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     c.GetRedisAddr(),
			Password: c.GetRedisPassword(),
			DB:       c.GetRedisDB(),
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis ping %s: %w", c.GetRedisAddr(), err)
		}
		backend = sessions.NewRedisStore(client, c.GetRedisPrefix())
		closeFn = func() { _ = client.Close() }
	case config.StoreTypeMemory:
		mem := sessions.NewMemoryStore(c.GetStoreRetention())
		backend = mem
		closeFn = func() { _ = mem.Close() }
	default:
		return nil, nil, fmt.Errorf("unknown session store %q", c.GetStoreType())
	}

	if passphrase := c.GetSessionPassphrase(); passphrase != "" {
		sealed, err := sessions.NewSealed(backend, passphrase)
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		backend = sealed
	}
	log.Info().Str("store", string(c.GetStoreType())).Bool("sealed", c.GetSessionPassphrase() != "").Msg("session store ready")
	return backend, closeFn, nil
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
