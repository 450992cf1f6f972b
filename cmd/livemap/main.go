package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fouezkebiche/memoire-projet/internal/config"
	"github.com/fouezkebiche/memoire-projet/internal/db"
	"github.com/fouezkebiche/memoire-projet/internal/handlers"
	"github.com/fouezkebiche/memoire-projet/internal/mapsync"
	"github.com/fouezkebiche/memoire-projet/internal/notify"
	"github.com/fouezkebiche/memoire-projet/internal/realtime/gtfsrt"
	"github.com/fouezkebiche/memoire-projet/internal/remote"
	"github.com/fouezkebiche/memoire-projet/internal/remote/jsonrpc"
	"github.com/fouezkebiche/memoire-projet/internal/route"
	"github.com/fouezkebiche/memoire-projet/internal/timeutil"
)

func main() {
	// .env first, then .env.local overrides for local development
	config.LoadEnvFiles(".")

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	logger := config.NewLogger(cfg.Server)
	log := logrus.NewEntry(logger)
	log.WithFields(logrus.Fields{
		"source":        cfg.Source.Kind,
		"views":         len(cfg.Views),
		"sync_interval": cfg.Sync.SyncInterval,
	}).Info("Starting live map service")

	// ═══════════════════════════════════════════════════════
	// Record source
	// ═══════════════════════════════════════════════════════
	source, pinger, closeSource, err := openSource(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to open record source")
	}
	defer closeSource()

	client := remote.Client(source)
	if cfg.Source.VehiclePositionsURL != "" {
		feed := gtfsrt.NewClient(cfg.Source.VehiclePositionsURL, cfg.Sync.FetchTimeout, log.WithField("component", "gtfsrt"))
		client = remote.NewMux(source).Handle(gtfsrt.EntityType, feed)
		log.WithField("url", cfg.Source.VehiclePositionsURL).Info("Vehicle positions feed enabled")
	}

	// ═══════════════════════════════════════════════════════
	// Views
	// ═══════════════════════════════════════════════════════
	reg := mapsync.NewRegistry(cfg.Views, mapsync.Deps{
		Client:       client,
		Notify:       notify.LogSink{Log: log.WithField("component", "notify")},
		Clock:        timeutil.RealClock{},
		Timing:       cfg.Sync.Timing(),
		Animation:    cfg.Sync.Animation,
		FetchTimeout: cfg.Sync.FetchTimeout,
		Palette:      route.DefaultPalette(),
		Log:          log,
	})

	network := &mapsync.Network{
		Client:    client,
		Entities:  mapsync.DefaultTopologyEntities(),
		Assembler: route.New(),
		Log:       log.WithField("component", "network"),
	}
	for _, v := range reg.Views() {
		if v.Kind == mapsync.KindTopology {
			network.Entities = v.Topology
			network.Filter = v.Filter
			break
		}
	}

	router := handlers.NewRouter(
		handlers.NewViewHandler(reg, timeutil.RealClock{}, log),
		handlers.NewRouteHandler(network, cfg.Sync.FetchTimeout, log),
		handlers.NewHealthHandler(pinger, func() int { return len(reg.List()) }),
		cfg.Server.AllowedOrigins,
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Server.Port).Info("API server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server failed to start")
		}
	}()

	// ═══════════════════════════════════════════════════════
	// Graceful shutdown
	// ═══════════════════════════════════════════════════════
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("HTTP shutdown incomplete")
	}
	reg.Close()
	log.Info("Goodbye!")
}

// openSource returns the configured record source. The pinger is nil for
// sources without a cheap connectivity check.
func openSource(cfg *config.Config, log *logrus.Entry) (remote.Client, handlers.Pinger, func(), error) {
	switch cfg.Source.Kind {
	case config.SourceJSONRPC:
		c := jsonrpc.NewClient(cfg.Source.BaseURL, cfg.Source.SessionID, cfg.Sync.FetchTimeout, log.WithField("component", "jsonrpc"))
		return c, nil, func() {}, nil
	default:
		var database *db.DB
		var err error
		if cfg.Source.Kind == config.SourcePostgres {
			database, err = db.ConnectPostgres(cfg.Source.DatabaseURL, log.WithField("component", "db"))
		} else {
			database, err = db.Connect(cfg.Source.SQLitePath, log.WithField("component", "db"))
		}
		if err != nil {
			return nil, nil, nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := database.EnsureSchema(ctx); err != nil {
			database.Close()
			return nil, nil, nil, err
		}
		return database, database, func() { database.Close() }, nil
	}
}
