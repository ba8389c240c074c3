package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"schedex/internal/config"
	appLog "schedex/internal/log"
	"schedex/internal/mailer"
	"schedex/internal/portal"
	"schedex/internal/ratelimit"
	"schedex/internal/session"
	"schedex/internal/store"
	"schedex/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	debug      bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.debug {
		conf.Debug = true
	}
	if conf.Debug {
		appLog.SetLevel(appLog.LevelDebug)
	}

	if conf.PortalURL == "" {
		appLog.Error("portal_url is not configured", errors.New("missing portal_url"), "config_path", flags.configPath)
		os.Exit(1)
	}

	appLog.Info("schedex starting",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"portal_url", conf.PortalURL,
		"redis", conf.Redis != nil,
		"mail", conf.MailEnabled(),
	)

	sessionStore, markerStore, cleanup, err := buildStores(conf)
	if err != nil {
		appLog.Error("failed to initialize stores", err)
		os.Exit(1)
	}
	defer cleanup()

	var sender mailer.Sender
	if conf.MailEnabled() {
		sender = mailer.NewMailgun(conf.Mail.APIKey, conf.Mail.Domain, conf.Mail.SenderName)
	}

	server := web.NewServer(
		conf,
		session.NewManager(sessionStore),
		ratelimit.New(markerStore),
		sender,
		portal.NewHTTPFactory(conf.PortalURL),
	)

	httpServer := &http.Server{
		Addr:    conf.Listen,
		Handler: server.Handler(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			appLog.Error("http shutdown failed", err)
		}
	}()

	appLog.Info("listening", "addr", "http://"+conf.Listen)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		appLog.Error("http server failed", err)
		os.Exit(1)
	}
	appLog.Info("schedex exiting")
}

// buildStores creates the session and rate-limit-marker stores: Redis when
// configured, otherwise the in-process store with a periodic expiry sweep.
func buildStores(conf *config.Config) (sessions, markers store.Store, cleanup func(), err error) {
	if conf.Redis != nil {
		client, err := store.NewRedisClient(conf.Redis.Addr, conf.Redis.Password, conf.Redis.DB)
		if err != nil {
			return nil, nil, nil, err
		}
		sessions = store.NewRedisStore(client, "session:", conf.SessionTTL())
		markers = store.NewRedisStore(client, "ratelimit:", conf.RateLimitTTL())
		return sessions, markers, func() { _ = client.Close() }, nil
	}

	appLog.Info("redis not configured; using in-process store")
	sessionMem := store.NewMemoryStore(conf.SessionTTL())
	markerMem := store.NewMemoryStore(conf.RateLimitTTL())

	stopSessions, err := sessionMem.StartSweeper("@every 1m")
	if err != nil {
		return nil, nil, nil, err
	}
	stopMarkers, err := markerMem.StartSweeper("@every 1m")
	if err != nil {
		stopSessions()
		return nil, nil, nil, err
	}
	return sessionMem, markerMem, func() {
		stopSessions()
		stopMarkers()
	}, nil
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/schedex/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}
