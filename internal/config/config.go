// Package config provides configuration loading and validation for
// respdiff.
//
// All configuration is validated during Load() to ensure correctness
// early: an invalid target, an out-of-range port, an unknown transport, or
// an unknown diff criterion fails the run before a single query is sent.
package config

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/CZ-NIC/respdiff-go/internal/matcher"
)

// Sentinel errors distinguished in the validation path, wrapped with the
// offending token via fmt.Errorf so callers can match on either the
// sentinel or the rendered message.
var (
	ErrUnknownTransportProtocol = errors.New("config: unknown transport protocol")
	ErrUnknownDiffCriteria      = errors.New("config: unknown diff criteria")
	ErrUnknownFieldWeight       = errors.New("config: unknown field weight")
)

// knownTransports is the closed set [servers]/[<name>] transport accepts.
var knownTransports = map[string]bool{"udp": true, "tcp": true, "tls": true}

// knownFieldWeights is the closed set [report] field_weights accepts.
var knownFieldWeights = map[string]bool{
	"timeout": true, "malformed": true, "opcode": true, "question": true,
	"rcode": true, "flags": true, "answertypes": true, "answerrrsigs": true,
	"answer": true, "authority": true, "additional": true, "edns": true,
	"nsid": true,
}

// Load reads and validates an INI configuration file at path.
func Load(path string) (*Config, error) {
	f, err := ini.LoadSources(ini.LoadOptions{SkipUnrecognizableLines: false}, path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}

	cfg := &Config{}
	if err := loadSendRecv(f, cfg); err != nil {
		return nil, err
	}
	if err := loadServers(f, cfg); err != nil {
		return nil, err
	}
	if err := loadDiff(f, cfg); err != nil {
		return nil, err
	}
	if err := loadReport(f, cfg); err != nil {
		return nil, err
	}

	if err := normalize(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadSendRecv(f *ini.File, cfg *Config) error {
	sec := f.Section("sendrecv")
	cfg.SendRecv.Timeout = sec.Key("timeout").MustFloat64(3.0)
	cfg.SendRecv.Jobs = sec.Key("jobs").MustInt(1)
	cfg.SendRecv.TimeDelayMin = sec.Key("time_delay_min").MustFloat64(0)
	cfg.SendRecv.TimeDelayMax = sec.Key("time_delay_max").MustFloat64(0)
	cfg.SendRecv.MaxTimeouts = sec.Key("max_timeouts").MustInt(0)
	if cfg.SendRecv.Timeout <= 0 {
		return fmt.Errorf("config: sendrecv.timeout must be positive")
	}
	if cfg.SendRecv.Jobs <= 0 {
		return fmt.Errorf("config: sendrecv.jobs must be positive")
	}
	return nil
}

func loadServers(f *ini.File, cfg *Config) error {
	names := splitCSV(f.Section("servers").Key("names").String())
	if len(names) < 2 {
		return fmt.Errorf("config: servers.names must declare at least two servers")
	}

	cfg.Servers = make([]Server, 0, len(names))
	for _, name := range names {
		if !f.HasSection(name) {
			return fmt.Errorf("config: no [%s] section for declared server", name)
		}
		sec := f.Section(name)
		transport := strings.ToLower(strings.TrimSpace(sec.Key("transport").MustString("udp")))
		if !knownTransports[transport] {
			return fmt.Errorf("%w: %s.transport: %q", ErrUnknownTransportProtocol, name, transport)
		}
		port := sec.Key("port").MustInt(53)
		if port < 1 || port > 65535 {
			return fmt.Errorf("config: %s.port %d out of range 1..65535", name, port)
		}
		cfg.Servers = append(cfg.Servers, Server{
			Name:      name,
			IP:        sec.Key("ip").String(),
			Port:      port,
			Transport: transport,
		})
	}
	return nil
}

func loadDiff(f *ini.File, cfg *Config) error {
	sec := f.Section("diff")
	cfg.Diff.Target = strings.TrimSpace(sec.Key("target").String())
	cfg.Diff.Criteria = splitCSV(sec.Key("criteria").String())

	for _, token := range cfg.Diff.Criteria {
		if _, ok := matcher.ParseCriterion(token); !ok {
			return fmt.Errorf("%w: diff.criteria: %q", ErrUnknownDiffCriteria, token)
		}
	}
	return nil
}

func loadReport(f *ini.File, cfg *Config) error {
	cfg.Report.FieldWeights = splitCSV(f.Section("report").Key("field_weights").String())
	for _, token := range cfg.Report.FieldWeights {
		if !knownFieldWeights[token] {
			return fmt.Errorf("%w: report.field_weights: %q", ErrUnknownFieldWeight, token)
		}
	}
	return nil
}

// normalize validates cross-section invariants once every section has
// loaded: the target must actually be one of the declared servers.
func normalize(cfg *Config) error {
	found := false
	for _, name := range cfg.ServerNames() {
		if name == cfg.Diff.Target {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("config: diff.target %q is not a declared server", cfg.Diff.Target)
	}
	return nil
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
