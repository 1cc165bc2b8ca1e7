// Package main provides the dose correction utility for historical formulas
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/formulab/v2/internal/domain/catalog"
	"github.com/formulab/v2/internal/infrastructure/config"
	"github.com/formulab/v2/internal/infrastructure/persistence/migrations"
	"github.com/formulab/v2/internal/infrastructure/persistence/postgres"
	"github.com/formulab/v2/pkg/logger"
)

func main() {
	var (
		multiplier = flag.Int("multiplier", 1, "dose correction factor (1, 2 or 3)")
		dryRun     = flag.Bool("dry-run", true, "compute and report without writing")
		configPath = flag.String("config", "", "path to config file")
	)
	flag.Parse()

	if !migrations.ValidMultiplier(*multiplier) {
		log.Fatalf("unsupported multiplier %d: must be 1, 2 or 3", *multiplier)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	zlog, err := logger.New(logger.Config{
		Level:  cfg.App.LogLevel,
		Format: "console",
	})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer zlog.Sync()

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.Database, zlog)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer pool.Close()

	fix := migrations.NewDoseFix(catalog.Default(), pool, zlog)
	report, err := fix.Run(ctx, *multiplier, *dryRun)
	if err != nil {
		log.Fatalf("dose fix failed: %v", err)
	}

	fmt.Printf("examined %d formulas, %d updated, %d skipped\n",
		report.Examined, report.Updated, len(report.Skipped))
	for _, skip := range report.Skipped {
		fmt.Printf("  skipped %s (%s): %s\n", skip.FormulaID, skip.Ingredient, skip.Reason)
	}
	if len(report.Skipped) > 0 {
		os.Exit(1)
	}
}
