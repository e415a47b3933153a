package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"phoshare.org/internal/auth"
	"phoshare.org/internal/gallery"
	"phoshare.org/internal/httpapi"
	"phoshare.org/internal/obs"
)

var version = "0.3.0"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("PHOSHARE_COMMIT"))

	secret := os.Getenv("PHOSHARE_AUTH_SECRET")
	if secret == "" {
		log.Fatal("PHOSHARE_AUTH_SECRET is required")
	}

	dsn := os.Getenv("PHOSHARE_PG_DSN")
	if dsn == "" {
		log.Fatal("PHOSHARE_PG_DSN is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	codec, err := auth.NewCodec([]byte(secret), nil)
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}

	authStore := auth.NewPGStore(db)
	var store auth.Store = authStore
	if addr := os.Getenv("PHOSHARE_REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		cached := auth.NewCachedBlacklist(authStore.Blacklist(context.Background()), client, 24*time.Hour)
		store = auth.WithBlacklist(authStore, cached)
		log.Printf("revocation cache enabled via redis at %s", addr)
	}

	opts := []auth.ServiceOption{}
	if ttl := durationEnv("PHOSHARE_ACCESS_TTL"); ttl > 0 {
		opts = append(opts, auth.WithAccessTTL(ttl))
	}
	if ttl := durationEnv("PHOSHARE_REFRESH_TTL"); ttl > 0 {
		opts = append(opts, auth.WithRefreshTTL(ttl))
	}
	authSvc, err := auth.NewService(store, codec, opts...)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	gallerySvc, err := gallery.NewService(gallery.NewPGStore(db))
	if err != nil {
		log.Fatalf("gallery service: %v", err)
	}

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, authSvc, gallerySvc, version)

	addr := os.Getenv("PHOSHARE_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting phoshare-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = db.Close()
	log.Println("Stopped")
}

func durationEnv(key string) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Fatalf("%s: %v", key, err)
	}
	return d
}
