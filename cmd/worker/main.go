package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cgs/glassbid-worker/internal/artifact"
	"github.com/cgs/glassbid-worker/internal/buildinfo"
	"github.com/cgs/glassbid-worker/internal/cleanup"
	"github.com/cgs/glassbid-worker/internal/config"
	"github.com/cgs/glassbid-worker/internal/diskguard"
	"github.com/cgs/glassbid-worker/internal/jobstore"
	"github.com/cgs/glassbid-worker/internal/logging"
	"github.com/cgs/glassbid-worker/internal/model"
	"github.com/cgs/glassbid-worker/internal/objectstore"
	"github.com/cgs/glassbid-worker/internal/render"
	"github.com/cgs/glassbid-worker/internal/scheduler"
	"github.com/cgs/glassbid-worker/internal/stage"
	"github.com/cgs/glassbid-worker/internal/validate"
)

func main() {
	buildinfo.LoadVersionFromFile()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogLevel).WithWorker(cfg.WorkerID)
	logging.PrintBanner(cfg.WorkerID, string(cfg.WorkerMode), cfg.PollInterval().String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := jobstore.NewPgStore(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to connect to database")
		os.Exit(1)
	}
	defer store.Close()

	objects, err := objectstore.NewS3Client(objectstore.Config{
		Endpoint:  cfg.MinioEndpoint,
		Port:      cfg.MinioPort,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		UseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to build object store client")
		os.Exit(1)
	}
	if err := objects.EnsureBuckets(ctx, objectstore.Buckets); err != nil {
		log.Error().Err(err).Msg("failed to ensure object store buckets")
		os.Exit(1)
	}

	guard := diskguard.New(cfg.TempDir, float64(cfg.DiskPressureThresholdPct), log)

	renderer := render.New(objects, guard, render.Limits{
		MaxDPI:    cfg.MaxRenderDPI,
		MaxPixels: cfg.MaxRenderPixels,
	}, log)

	indexing := stage.NewIndexing(objects, log)
	routing := stage.NewRouting(store, log)
	extracting := stage.NewExtracting(store, log)
	pricing := stage.NewPricing(log)

	generator := artifact.New()
	generating := stage.NewGenerating(store, objects, generator, validateAdapter, log)

	cleanupRunner := cleanup.New(store, objects, guard, log)

	sched := scheduler.New(cfg, store, guard, renderer, indexing, routing, extracting, pricing, generating, cleanupRunner, log)

	if err := sched.Run(ctx); err != nil {
		log.Error().Err(err).Msg("scheduler exited with error")
		logging.PrintShutdownBanner()
		os.Exit(1)
	}

	logging.PrintShutdownBanner()
}

// validateAdapter bridges validate.Validate into the stage package's
// narrow Validator type (see internal/stage/generating.go for the local
// types stage declares instead of importing artifact and validate).
func validateAdapter(ssot *model.SSOT) []stage.ValidationFinding {
	findings := validate.Validate(ssot)
	out := make([]stage.ValidationFinding, 0, len(findings))
	for _, f := range findings {
		out = append(out, stage.ValidationFinding{Code: f.Code, Message: f.Message, ItemID: f.ItemID})
	}
	return out
}
