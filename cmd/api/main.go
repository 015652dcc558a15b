package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/nats-io/nats.go"

	"github.com/zenmed/carechat/internal/auth"
	"github.com/zenmed/carechat/internal/chat"
	"github.com/zenmed/carechat/internal/config"
	"github.com/zenmed/carechat/internal/data"
	"github.com/zenmed/carechat/internal/db"
	"github.com/zenmed/carechat/internal/events"
	"github.com/zenmed/carechat/internal/flood"
	"github.com/zenmed/carechat/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Store variant is fixed here, once; business logic never branches on it.
	var (
		store data.Store
		dir   data.Directory
	)
	if cfg.MongoURI != "" {
		dbClient, err := db.New(ctx, cfg.MongoURI)
		if err != nil {
			slog.Error("failed to connect to MongoDB", "error", err)
			os.Exit(1)
		}
		defer func() { _ = dbClient.Close(context.Background()) }()

		if err := dbClient.CreateIndexes(ctx); err != nil {
			slog.Error("failed to create indexes", "error", err)
			os.Exit(1)
		}
		store = data.NewMongoStore(data.Collections{
			Channels: dbClient.ChannelsCollection(),
			Messages: dbClient.MessagesCollection(),
			Counters: dbClient.CountersCollection(),
		})
		dir = data.NewUsersStore(dbClient.UsersCollection())
	} else {
		slog.Warn("MONGODB_URI not set, using in-memory fixture store")
		memStore := data.NewMemoryStore()
		memDir := data.NewMemoryDirectory()
		seedFixtureUsers(ctx, memDir)
		store = memStore
		dir = memDir
	}

	// Event transport: external NATS, embedded NATS, or in-process hub.
	var bus events.Bus
	switch {
	case cfg.NATSURL != "":
		nc, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err, "url", cfg.NATSURL)
			os.Exit(1)
		}
		defer nc.Close()
		bus = events.NewNATSBus(nc)
	case cfg.NATSEmbedded:
		es, err := events.NewEmbeddedServer(cfg.NATSStoreDir)
		if err != nil {
			slog.Error("failed to start embedded NATS", "error", err)
			os.Exit(1)
		}
		defer es.Shutdown()
		bus = events.NewNATSBus(es.Connection())
	default:
		bus = events.NewMemoryBus()
	}

	secret := cfg.JWTSecret
	if secret == "" {
		if cfg.MongoURI != "" {
			slog.Error("JWT_SECRET must be set")
			os.Exit(1)
		}
		// Fixture mode only.
		secret = "insecure-dev-secret"
		slog.Warn("JWT_SECRET not set, using development secret")
	}
	jwtMgr := auth.NewJWTManager(secret, cfg.TokenDuration)

	gate := flood.NewGate(0, 0, 0, 0)
	defer gate.Stop()

	svc := chat.NewService(store, dir, bus, gate)
	server := web.NewServer(svc, dir, jwtMgr, bus, cfg)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(ctx); err != nil {
			slog.Error("web server error", "error", err)
		}
	}()

	slog.Info("carechat started", "webPort", cfg.WebPort)

	<-sigChan
	slog.Info("shutdown signal received")

	cancel()
	wg.Wait()

	slog.Info("carechat stopped")
}

// seedFixtureUsers provisions demo accounts for local development against
// the in-memory directory. All passwords are "password".
func seedFixtureUsers(ctx context.Context, dir data.Directory) {
	hash, err := auth.HashPassword("password")
	if err != nil {
		slog.Error("failed to hash fixture password", "error", err)
		return
	}
	users := []*data.User{
		{ID: "u-coordinator", Email: "coordinator@example.com", Name: "Care Coordinator", Role: data.RoleCoordinator, Password: hash},
		{ID: "u-doctor", Email: "doctor@example.com", Name: "Dr. Demo", Role: data.RoleDoctor, Password: hash},
		{ID: "u-patient", Email: "patient@example.com", Name: "Demo Patient", Role: data.RolePatient, Password: hash},
	}
	for _, u := range users {
		if err := dir.CreateUser(ctx, u); err != nil {
			slog.Error("failed to seed fixture user", "email", u.Email, "error", err)
		}
	}
	slog.Info("fixture users seeded", "count", len(users))
}
