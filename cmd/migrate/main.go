// Command migrate replays a legacy registry export into the current registry.
//
// The export is a JSON file produced from the prior schema; the run goes
// through the protocol orchestrator's write API, so every invariant the live
// registry enforces also holds for migrated history. Retried runs converge:
// controllers that already registered are skipped.
package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"

	identityService "agentledger/internal/identity/service"
	identityStore "agentledger/internal/identity/store"
	"agentledger/internal/migration"
	"agentledger/internal/platform/config"
	"agentledger/internal/platform/logger"
	protocolService "agentledger/internal/protocol/service"
	resumeService "agentledger/internal/resume/service"
	resumeStore "agentledger/internal/resume/store"
	verificationService "agentledger/internal/verification/service"
	verificationStore "agentledger/internal/verification/store"
	"agentledger/pkg/platform/tx"
)

func main() {
	exportPath := flag.String("export", "", "path to the legacy registry JSON export")
	requireFees := flag.Bool("require-fees", false, "replayed submissions pay the current verification fee")
	dryRun := flag.Bool("dry-run", false, "replay into in-memory stores and report, without touching the database")
	flag.Parse()

	cfg := config.FromEnv()
	log := logger.New()

	if *exportPath == "" {
		log.Error("missing required -export flag")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		identities    *identityService.Service
		resumes       *resumeService.Service
		verifications *verificationService.Service
		atomic        protocolService.Atomic
	)
	if *dryRun || cfg.Postgres.URL == "" {
		if !*dryRun {
			log.Warn("no postgres url configured, running against in-memory stores")
		}
		identities = identityService.New(identityStore.NewInMemory(), identityService.WithLogger(log))
		resumes = resumeService.New(resumeStore.NewInMemory(), resumeService.WithLogger(log))
		verifications = verificationService.New(verificationStore.NewInMemory(), resumes, cfg.Owner,
			verificationService.WithLogger(log))
		atomic = protocolService.NewSerialAtomic()
	} else {
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
	}

	orchestrator := protocolService.New(identities, resumes, verifications, atomic,
		cfg.Owner, cfg.VerificationFee,
		protocolService.WithLogger(log),
	)

	adapter := migration.New(orchestrator,
		migration.Config{Owner: cfg.Owner, RequireFees: *requireFees},
		migration.WithLogger(log),
	)

	report, err := adapter.Run(ctx, migration.NewFileSource(*exportPath))
	if err != nil {
		if report != nil {
			log.Error("migration aborted mid-run",
				"error", err,
				"agents_registered", report.AgentsRegistered,
				"jobs_replayed", report.JobsReplayed,
			)
		} else {
			log.Error("migration failed", "error", err)
		}
		os.Exit(1)
	}

	log.Info("migration finished",
		"dry_run", *dryRun,
		"agents_registered", report.AgentsRegistered,
		"agents_skipped", report.AgentsSkipped,
		"jobs_replayed", report.JobsReplayed,
		"resolutions_replayed", report.ResolutionsReplayed,
	)
}
