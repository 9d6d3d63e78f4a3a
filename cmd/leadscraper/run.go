package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/palantir/business-contact-pipeline/internal/app"
	"github.com/palantir/business-contact-pipeline/pkg/pipeline/io/local"
)

var (
	runArea   string
	runSector string
	runInput  string
	runOutput string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run searches now and write the contacts as CSV",
	Long: `Runs one search (--area and --sector) or every row of a CSV with
area,sector columns (--input), then writes all contact rows as CSV to
--output or stdout.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runArea, "area", "", "city or area to search")
	runCmd.Flags().StringVar(&runSector, "sector", "", "business sector to search")
	runCmd.Flags().StringVar(&runInput, "input", "", "CSV file with area,sector columns")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "output CSV path (default stdout)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	queries, err := runQueries()
	if err != nil {
		return err
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}()

	var out io.Writer = cmd.OutOrStdout()
	if runOutput != "" {
		f, err := os.Create(runOutput)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}

	searches, err := a.Service.RunLocal(ctx, queries, out)
	if err != nil {
		return err
	}
	for _, s := range searches {
		if s.ErrorMessage != "" {
			logger.Warn("search failed", zap.Int64("search_id", s.ID), zap.String("error", s.ErrorMessage))
		}
	}
	if f, ok := out.(*os.File); ok && runOutput != "" {
		return f.Sync()
	}
	return nil
}

func runQueries() ([]local.Query, error) {
	if runInput != "" {
		if runArea != "" || runSector != "" {
			return nil, errors.New("use either --input or --area/--sector")
		}
		f, err := os.Open(runInput)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		return local.ReadQueriesCSV(f)
	}
	area, sector := strings.TrimSpace(runArea), strings.TrimSpace(runSector)
	if area == "" || sector == "" {
		return nil, errors.New("--area and --sector are required (or --input)")
	}
	return []local.Query{{Area: area, Sector: sector}}, nil
}
