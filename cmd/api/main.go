package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"shelfd.org/internal/auth"
	"shelfd.org/internal/catalog"
	"shelfd.org/internal/embedding"
	"shelfd.org/internal/httpapi"
	"shelfd.org/internal/obs"
	"shelfd.org/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	secret, generated, err := auth.ResolveSecret(os.Getenv("SHELFD_TOKEN_SECRET"))
	if err != nil {
		log.Fatalf("token secret: %v", err)
	}
	if generated {
		log.Println("WARNING: SHELFD_TOKEN_SECRET not set; generated an ephemeral secret, tokens will not survive restarts")
	}
	codec, err := auth.NewCodec(secret)
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}

	// Postgres when a DSN is configured, in-memory stores otherwise (dev mode)
	var (
		authStore auth.Store
		cat       catalog.Service
		probe     httpapi.ReadyProbe
	)
	var pgStore *pg.Store
	if dsn := os.Getenv("SHELFD_PG_DSN"); dsn != "" {
		pgStore, err = pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		cat = pgStore
		authStore = auth.NewPGStore(pgStore.DB())
		probe = httpapi.ReadyProbe{DB: pgStore.DB()}
	} else {
		log.Println("WARNING: SHELFD_PG_DSN not set; using in-memory stores, data will not survive restarts")
		cat = catalog.NewInMemory()
		authStore = auth.NewInMemoryStore()
	}

	var opts []auth.ServiceOption
	if ttl := durationEnv("SHELFD_ACCESS_TTL"); ttl > 0 {
		opts = append(opts, auth.WithAccessTTL(ttl))
	}
	if ttl := durationEnv("SHELFD_REFRESH_TTL"); ttl > 0 {
		opts = append(opts, auth.WithRefreshTTL(ttl))
	}
	authsvc := auth.NewService(authStore, codec, opts...)

	var embedder httpapi.Embedder
	if embedURL := os.Getenv("SHELFD_EMBED_URL"); embedURL != "" {
		var clientOpts []embedding.Option
		if model := os.Getenv("SHELFD_EMBED_MODEL"); model != "" {
			clientOpts = append(clientOpts, embedding.WithModel(model))
		}
		if redisAddr := os.Getenv("SHELFD_REDIS_ADDR"); redisAddr != "" {
			rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
			defer rdb.Close()
			clientOpts = append(clientOpts, embedding.WithCache(
				embedding.NewRedisCache(rdb, durationEnv("SHELFD_EMBED_CACHE_TTL"))))
		}
		embedder = embedding.NewClient(embedURL, os.Getenv("SHELFD_EMBED_API_KEY"), clientOpts...)
	} else {
		log.Println("SHELFD_EMBED_URL not set; semantic search disabled")
	}

	api := httpapi.New(authsvc, authStore, cat, embedder, probe, version)

	handler := api.Handler()
	handler = httpapi.RateLimit(handler, 50, 25)
	handler = httpapi.MaxBodyBytes(handler, 1<<20)
	handler = httpapi.CORS(handler)
	handler = httpapi.SecurityHeaders(handler)
	handler = httpapi.LoggingJSON(handler)
	handler = httpapi.RequestID(handler)

	addr := os.Getenv("SHELFD_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting shelfd-api %s on %s", version, srv.Addr)

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
	if pgStore != nil {
		_ = pgStore.Close()
	}
	log.Println("Stopped")
}

func durationEnv(name string) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Fatalf("%s: %v", name, err)
	}
	return d
}
