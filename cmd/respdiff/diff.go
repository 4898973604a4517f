package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/CZ-NIC/respdiff-go/internal/config"
	"github.com/CZ-NIC/respdiff-go/internal/diag"
	"github.com/CZ-NIC/respdiff-go/internal/diffengine"
	"github.com/CZ-NIC/respdiff-go/internal/logging"
	"github.com/CZ-NIC/respdiff-go/internal/matcher"
	"github.com/CZ-NIC/respdiff-go/internal/report"
	"github.com/CZ-NIC/respdiff-go/internal/respfmt"
	"github.com/CZ-NIC/respdiff-go/internal/store"
)

type diffFlags struct {
	configPath string
	envDir     string
	dataFile   string
	logLevel   string
	jsonLogs   bool
}

func parseDiffFlags(args []string) (diffFlags, error) {
	fs := flag.NewFlagSet("diff-answers", flag.ContinueOnError)
	var f diffFlags
	fs.StringVar(&f.configPath, "config", "", "Path to the respdiff INI config file")
	fs.StringVar(&f.envDir, "envdir", ".", "Directory holding the data store")
	fs.StringVar(&f.dataFile, "datafile", "", "Report output path (default <envdir>/report.json)")
	fs.StringVar(&f.logLevel, "log-level", "INFO", "Log level: DEBUG, INFO, WARN, ERROR")
	fs.BoolVar(&f.jsonLogs, "json-logs", false, "Emit structured JSON logs")
	if err := fs.Parse(args); err != nil {
		return diffFlags{}, err
	}
	if f.dataFile == "" {
		f.dataFile = filepath.Join(f.envDir, "report.json")
	}
	return f, nil
}

func runDiffAnswers(ctx context.Context, args []string) error {
	flags, err := parseDiffFlags(args)
	if err != nil {
		return err
	}
	logger := logging.Configure(logging.Config{
		Level:            flags.logLevel,
		Structured:       flags.jsonLogs,
		StructuredFormat: "json",
	})

	cfg, err := config.Load(config.ResolveConfigPath(flags.configPath))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	diag.Sample(flags.envDir).Log(logger)

	s, err := store.Open(flags.envDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	if err := s.CheckVersion(); err != nil {
		return fmt.Errorf("check store version: %w", err)
	}

	startTime, endTime, err := s.StartEndTime()
	if err != nil {
		return fmt.Errorf("read run time range: %w", err)
	}

	storedServers, err := s.ServerNames()
	if err != nil {
		return fmt.Errorf("read server names: %w", err)
	}

	idx, err := diffengine.PrepareIndices(storedServers, cfg.Diff.Target)
	if err != nil {
		return fmt.Errorf("prepare indices: %w", err)
	}

	criteria := make([]matcher.DiffCriteria, 0, len(cfg.Diff.Criteria))
	for _, token := range cfg.Diff.Criteria {
		c, ok := matcher.ParseCriterion(token)
		if !ok {
			return fmt.Errorf("unknown diff criteria %q", token)
		}
		criteria = append(criteria, c)
	}

	var lists []respfmt.ResponseList
	if err := s.ForEachAnswer(func(key uint32, value []byte) error {
		replies, err := respfmt.Decode(value)
		if err != nil {
			return fmt.Errorf("decode answer for key %d: %w", key, err)
		}
		lists = append(lists, respfmt.ResponseList{Key: key, Replies: replies})
		return nil
	}); err != nil {
		return fmt.Errorf("read answers: %w", err)
	}

	totalQueries, err := s.CountQueries()
	if err != nil {
		return fmt.Errorf("count queries: %w", err)
	}
	totalAnswers, err := s.CountAnswers()
	if err != nil {
		return fmt.Errorf("count answers: %w", err)
	}

	result, err := diffengine.Run(ctx, lists, idx, criteria, 0)
	if err != nil {
		return fmt.Errorf("run differential engine: %w", err)
	}

	rpt := report.Build(result, startTime, endTime, totalQueries, totalAnswers)
	raw, err := rpt.MarshalIndent()
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	if err := os.WriteFile(flags.dataFile, raw, 0o644); err != nil {
		return fmt.Errorf("write report to %s: %w", flags.dataFile, err)
	}

	logger.Info("diff-answers complete",
		"target_disagreement_fields", len(result.TargetDisagreements),
		"other_disagreements", len(result.OthersDisagreements),
		"report_path", flags.dataFile,
	)
	return nil
}
