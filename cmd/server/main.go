// Command server runs the agent registry HTTP API.
//
// main wires configuration, stores, the protocol orchestrator, and the HTTP
// router; business logic lives in the internal service packages. With
// AGENTLEDGER_POSTGRES_URL unset the registry runs fully in memory, which is
// the mode used for local development.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	identityService "agentledger/internal/identity/service"
	identityStore "agentledger/internal/identity/store"
	"agentledger/internal/jwttoken"
	"agentledger/internal/platform/config"
	"agentledger/internal/platform/httpserver"
	"agentledger/internal/platform/logger"
	platformMetrics "agentledger/internal/platform/metrics"
	redisplatform "agentledger/internal/platform/redis"
	protocolHandler "agentledger/internal/protocol/handler"
	protocolMetrics "agentledger/internal/protocol/metrics"
	protocolService "agentledger/internal/protocol/service"
	"agentledger/internal/ratelimit"
	ratelimitMiddleware "agentledger/internal/ratelimit/middleware"
	ratelimitModels "agentledger/internal/ratelimit/models"
	ratelimitStore "agentledger/internal/ratelimit/store"
	resumeService "agentledger/internal/resume/service"
	resumeStore "agentledger/internal/resume/store"
	verificationService "agentledger/internal/verification/service"
	verificationStore "agentledger/internal/verification/store"
	"agentledger/pkg/platform/audit"
	auditKafka "agentledger/pkg/platform/audit/kafka"
	"agentledger/pkg/platform/audit/publisher"
	auditMemory "agentledger/pkg/platform/audit/store/memory"
	auditPostgres "agentledger/pkg/platform/audit/store/postgres"
	"agentledger/pkg/platform/middleware/admin"
	"agentledger/pkg/platform/middleware/auth"
	"agentledger/pkg/platform/middleware/request"
	"agentledger/pkg/platform/tx"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Store selection: Postgres when configured, in-memory otherwise. The
	// atomic boundary matches the stores; mixing them would break the
	// all-or-nothing guarantee of cross-layer operations.
	var (
		identities    *identityService.Service
		resumes       *resumeService.Service
		verifications *verificationService.Service
		atomic        protocolService.Atomic
		auditStore    audit.Store
	)
	if cfg.Postgres.URL != "" {
		db, err := sql.Open("pgx", cfg.Postgres.URL)
		if err != nil {
			log.Error("open postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.Error("ping postgres", "error", err)
			os.Exit(1)
		}

		identities = identityService.New(identityStore.NewPostgres(db), identityService.WithLogger(log))
		resumes = resumeService.New(resumeStore.NewPostgres(db), resumeService.WithLogger(log))
		verifications = verificationService.New(verificationStore.NewPostgres(db), resumes, cfg.Owner,
			verificationService.WithLogger(log))
		atomic = tx.NewSQLAtomic(db)
		auditStore = auditPostgres.New(db)
		log.Info("using postgres stores")
	} else {
		identities = identityService.New(identityStore.NewInMemory(), identityService.WithLogger(log))
		resumes = resumeService.New(resumeStore.NewInMemory(), resumeService.WithLogger(log))
		verifications = verificationService.New(verificationStore.NewInMemory(), resumes, cfg.Owner,
			verificationService.WithLogger(log))
		atomic = protocolService.NewSerialAtomic()
		auditStore = auditMemory.NewInMemoryStore()
		log.Info("using in-memory stores")
	}

	publisherOpts := []publisher.Option{publisher.WithAsyncBuffer(256)}
	if len(cfg.Kafka.Brokers) > 0 {
		sink, err := auditKafka.NewSink(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			log.Error("connect kafka audit sink", "error", err)
			os.Exit(1)
		}
		defer sink.Close()
		publisherOpts = append(publisherOpts, publisher.WithSink(sink))
		log.Info("audit events streaming to kafka", "topic", cfg.Kafka.Topic)
	}
	auditPublisher := publisher.NewPublisher(auditStore, publisherOpts...)
	defer auditPublisher.Close()

	metrics := protocolMetrics.New()
	orchestrator := protocolService.New(identities, resumes, verifications, atomic,
		cfg.Owner, cfg.VerificationFee,
		protocolService.WithLogger(log),
		protocolService.WithAuditPublisher(auditPublisher),
		protocolService.WithMetrics(metrics),
	)

	var windowStore ratelimitStore.WindowStore = ratelimitStore.NewInMemory()
	redisClient, err := redisplatform.New(cfg.Redis)
	if err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		windowStore = ratelimitStore.NewRedis(redisClient.Client)
		log.Info("rate limits shared via redis")
	}
	limits := ratelimitModels.DefaultLimits()
	limits[ratelimitModels.ClassWrite] = ratelimitModels.Limit{
		Requests: cfg.RateLimit.Limit,
		Window:   cfg.RateLimit.Window,
	}
	limiter := ratelimit.New(windowStore, ratelimit.WithLimits(limits), ratelimit.WithLogger(log))
	rl := ratelimitMiddleware.New(limiter, log)

	tokens := jwttoken.NewService(cfg.JWTSigningKey, "agentledger", "agentledger")

	h := protocolHandler.New(orchestrator, identities, resumes, verifications, log)

	router := chi.NewRouter()
	router.Use(request.Stamp)
	router.Use(platformMetrics.NewHTTP().Middleware)

	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.RequirePrincipal(tokens, log))
		r.Use(limitByMethod(rl))
		h.Register(r)
	})
	router.Route("/admin", func(r chi.Router) {
		r.Use(admin.RequireAdminToken(cfg.AdminToken, log))
		r.Use(auth.RequirePrincipal(tokens, log))
		r.Use(rl.Limit(ratelimitModels.ClassAdmin))
		h.RegisterAdmin(r)
	})

	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting agentledger", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

// limitByMethod applies the write budget to mutating methods and the read
// budget to everything else.
func limitByMethod(rl *ratelimitMiddleware.Middleware) func(http.Handler) http.Handler {
	writeLimit := rl.Limit(ratelimitModels.ClassWrite)
	readLimit := rl.Limit(ratelimitModels.ClassRead)
	return func(next http.Handler) http.Handler {
		writes := writeLimit(next)
		reads := readLimit(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead:
				reads.ServeHTTP(w, r)
			default:
				writes.ServeHTTP(w, r)
			}
		})
	}
}
