package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/openlettings/auth-gateway/authstream"
	"github.com/openlettings/auth-gateway/backend/devbackend"
	"github.com/openlettings/auth-gateway/backend/hosted"
	"github.com/openlettings/auth-gateway/expiry"
	"github.com/openlettings/auth-gateway/inactivity"
	"github.com/openlettings/auth-gateway/internal/config"
	"github.com/openlettings/auth-gateway/profiles"
	"github.com/openlettings/auth-gateway/profiles/postgres"
	"github.com/openlettings/auth-gateway/profiles/repofakes"
	"github.com/openlettings/auth-gateway/rememberme"
	"github.com/openlettings/auth-gateway/server"
	"github.com/openlettings/auth-gateway/session"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Fatalf("Error running gateway: %s\n", err)
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Printf("Gateway stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName())
	logger := newLogger(c)

	components, err := bootstrap(context.Background(), c, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	httpServer := &http.Server{Addr: c.GetPort(), Handler: components.server}
	go listenAndServe(httpServer)
	waitForStopSignal()
	returnError = shutdown(httpServer)
	return returnError
}

// components holds everything that needs an orderly shutdown.
type components struct {
	server      *server.Server
	store       *session.Store
	broadcaster *authstream.Broadcaster
	monitor     *expiry.Monitor
	refresher   *inactivity.Refresher
	closers     []func()
}

func (c *components) Close() {
	c.refresher.Close()
	c.monitor.Close()
	c.broadcaster.Close()
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

func bootstrap(ctx context.Context, c config.Config, logger zerolog.Logger) (*components, error) {
	var closers []func()

	backend, source, webhook, dev, err := buildBackend(ctx, c, logger)
	if err != nil {
		return nil, err
	}

	repo, repoClose, err := buildProfileRepo(ctx, c)
	if err != nil {
		return nil, err
	}
	if repoClose != nil {
		closers = append(closers, repoClose)
	}

	if dev != nil {
		if fake, ok := repo.(*repofakes.FakeProfileRepo); ok {
			seedDev(dev, fake, logger)
		}
	}

	resolver, err := profiles.NewResolver(repo)
	if err != nil {
		return nil, err
	}

	remember, rememberClose := buildRememberStore(c)
	if rememberClose != nil {
		closers = append(closers, rememberClose)
	}

	store, err := session.NewStore(backend, resolver, remember, session.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	broadcaster, err := authstream.NewBroadcaster(source, store, authstream.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if err := broadcaster.Start(); err != nil {
		return nil, err
	}

	monitor, err := expiry.NewMonitor(store,
		expiry.WithThreshold(c.GetExpiryThreshold()),
		expiry.WithPollInterval(c.GetExpiryPollInterval()),
		expiry.WithDismissCooldown(c.GetDismissCooldown()),
		expiry.WithMonitorLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	monitor.Start()

	refresher, err := inactivity.NewRefresher(store,
		inactivity.WithIdlePeriod(c.GetIdlePeriod()),
		inactivity.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	serverOptions := []server.ServerOption{server.WithServerLogger(logger)}
	if webhook != nil {
		serverOptions = append(serverOptions, server.WithProviderWebhook(webhook))
	}
	srv, err := server.New(c, store, monitor, refresher, serverOptions...)
	if err != nil {
		return nil, err
	}

	// Recover any persisted session before serving traffic. Never fatal:
	// failure just means the gateway starts signed out.
	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	store.Initialize(initCtx)

	return &components{
		server:      srv,
		store:       store,
		broadcaster: broadcaster,
		monitor:     monitor,
		refresher:   refresher,
		closers:     closers,
	}, nil
}

func buildBackend(ctx context.Context, c config.Config, logger zerolog.Logger) (session.Backend, authstream.Source, http.HandlerFunc, *devbackend.Backend, error) {
	if c.UseDevBackend() {
		logger.Warn().Msg("using in-memory dev backend, not for production")
		dev := devbackend.New([]byte(c.GetDevSecret()))
		return dev, dev, nil, dev, nil
	}

	clientOptions := []hosted.ClientOption{hosted.WithClientLogger(logger)}
	if addr := c.GetRedisAddr(); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		clientOptions = append(clientOptions, hosted.WithTokenStore(hosted.NewRedisTokenStore(client)))
	}

	client, err := hosted.NewClient(c.GetProviderURL(), c.GetProviderAPIKey(), clientOptions...)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if issuer := c.GetOIDCIssuer(); issuer != "" {
		if err := client.EnableIDTokenVerification(ctx, issuer, c.GetOIDCClientID()); err != nil {
			return nil, nil, nil, nil, err
		}
	}
	return client, client, client.WebhookHandler(), nil, nil
}

func buildProfileRepo(ctx context.Context, c config.Config) (profiles.Repo, func(), error) {
	dsn := c.GetPostgresDSN()
	if dsn == "" {
		return repofakes.NewFakeProfileRepo(), nil, nil
	}
	repo, err := postgres.Connect(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	return repo, repo.Close, nil
}

func buildRememberStore(c config.Config) (rememberme.Store, func()) {
	addr := c.GetRedisAddr()
	if addr == "" {
		return rememberme.NewMemoryStore(), nil
	}
	store := rememberme.NewRedisStore(addr)
	return store, func() { _ = store.Close() }
}

func listenAndServe(server *http.Server) error {
	log.Printf("Gateway listening on %s\n", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func newLogger(c config.Config) zerolog.Logger {
	if c.GetEnv() == "DEV" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger().Level(zerolog.DebugLevel)
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.InfoLevel)
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
