package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"time"

	"github.com/CZ-NIC/respdiff-go/internal/config"
	"github.com/CZ-NIC/respdiff-go/internal/diag"
	"github.com/CZ-NIC/respdiff-go/internal/logging"
	"github.com/CZ-NIC/respdiff-go/internal/respfmt"
	"github.com/CZ-NIC/respdiff-go/internal/store"
	"github.com/CZ-NIC/respdiff-go/internal/transceiver"
)

type transceiveFlags struct {
	configPath string
	envDir     string
	logLevel   string
	jsonLogs   bool
}

func parseTransceiveFlags(args []string) (transceiveFlags, error) {
	fs := flag.NewFlagSet("transceive", flag.ContinueOnError)
	var f transceiveFlags
	fs.StringVar(&f.configPath, "config", "", "Path to the respdiff INI config file")
	fs.StringVar(&f.envDir, "envdir", ".", "Directory holding the data store")
	fs.StringVar(&f.logLevel, "log-level", "INFO", "Log level: DEBUG, INFO, WARN, ERROR")
	fs.BoolVar(&f.jsonLogs, "json-logs", false, "Emit structured JSON logs")
	if err := fs.Parse(args); err != nil {
		return transceiveFlags{}, err
	}
	return f, nil
}

func runTransceive(ctx context.Context, args []string) error {
	flags, err := parseTransceiveFlags(args)
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

	if err := s.InitMeta(cfg.ServerNames(), uint32(time.Now().Unix())); err != nil {
		return fmt.Errorf("init meta: %w", err)
	}

	var queries []transceiver.Query
	if err := s.ForEachQuery(func(key uint32, wire []byte) error {
		cp := make([]byte, len(wire))
		copy(cp, wire)
		queries = append(queries, transceiver.Query{Key: key, Wire: cp})
		return nil
	}); err != nil {
		return fmt.Errorf("read queries: %w", err)
	}
	logger.Info("loaded queries", "count", len(queries))

	servers := make([]transceiver.ServerEndpoint, len(cfg.Servers))
	for i, srv := range cfg.Servers {
		network := "udp4"
		servers[i] = transceiver.ServerEndpoint{
			Name:      srv.Name,
			Network:   network,
			Address:   fmt.Sprintf("%s:%d", srv.IP, srv.Port),
			Transport: srv.Transport,
		}
	}

	writer, err := s.BeginAnswers()
	if err != nil {
		return fmt.Errorf("begin answers transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = writer.Rollback()
		}
	}()

	// [sendrecv] declares a delay range, not a QPS directly; the pacer
	// wants one steady-state rate, so it takes the midpoint of the
	// configured range and uses its reciprocal.
	delay := cfg.SendRecv.TimeDelayMin
	if cfg.SendRecv.TimeDelayMax > delay {
		delay = (cfg.SendRecv.TimeDelayMin + cfg.SendRecv.TimeDelayMax) / 2
	}
	qps := 1000.0
	if delay > 0 {
		qps = 1.0 / delay
	}

	stats := &transceiver.Stats{}
	runErr := transceiver.Run(ctx, queries, transceiver.Options{
		Servers:     servers,
		Timeout:     time.Duration(cfg.SendRecv.Timeout * float64(time.Second)),
		QPS:         qps,
		MaxTimeouts: cfg.SendRecv.MaxTimeouts,
		Logger:      logger,
	}, func(rl respfmt.ResponseList) error {
		return writer.Put(rl.Key, respfmt.Encode(rl.Replies))
	}, stats)

	if runErr != nil {
		return fmt.Errorf("transceive run: %w", runErr)
	}
	if err := writer.Commit(); err != nil {
		return fmt.Errorf("commit answers: %w", err)
	}
	committed = true

	if err := s.PutEndTime(uint32(time.Now().Unix())); err != nil {
		return fmt.Errorf("write end_time: %w", err)
	}

	snap := stats.Snapshot()
	logger.Info("transceive complete",
		slog.Uint64("queries_sent", snap.QueriesSent),
		slog.Uint64("queries_answered", snap.QueriesAnswered),
		slog.Uint64("queries_timed_out", snap.QueriesTimedOut),
	)
	return nil
}
