package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "respdiff.cfg")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validConfig = `
[sendrecv]
timeout = 4.5
jobs = 8
time_delay_min = 0.01
time_delay_max = 0.02
max_timeouts = 10

[servers]
names = resolverA, resolverB, target

[resolverA]
ip = 192.0.2.1
port = 53
transport = udp

[resolverB]
ip = 192.0.2.2
port = 53
transport = udp

[target]
ip = 192.0.2.3
port = 5353
transport = udp

[diff]
target = target
criteria = opcode, rcode, flags

[report]
field_weights = timeout, malformed, answer
`

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, validConfig)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4.5, cfg.SendRecv.Timeout)
	assert.Equal(t, 8, cfg.SendRecv.Jobs)
	assert.Equal(t, 10, cfg.SendRecv.MaxTimeouts)

	require.Len(t, cfg.Servers, 3)
	assert.Equal(t, []string{"resolverA", "resolverB", "target"}, cfg.ServerNames())
	assert.Equal(t, "192.0.2.3", cfg.Servers[2].IP)
	assert.Equal(t, 5353, cfg.Servers[2].Port)
	assert.Equal(t, "udp", cfg.Servers[2].Transport)

	assert.Equal(t, "target", cfg.Diff.Target)
	assert.Equal(t, []string{"opcode", "rcode", "flags"}, cfg.Diff.Criteria)
	assert.Equal(t, []string{"timeout", "malformed", "answer"}, cfg.Report.FieldWeights)
}

func TestLoadRejectsTargetNotDeclared(t *testing.T) {
	path := writeConfig(t, `
[sendrecv]
timeout = 1
jobs = 1

[servers]
names = a, b

[a]
ip = 192.0.2.1

[b]
ip = 192.0.2.2

[diff]
target = nonexistent
criteria = opcode
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "not a declared server")
}

func TestLoadRejectsUnknownTransport(t *testing.T) {
	path := writeConfig(t, `
[sendrecv]
timeout = 1
jobs = 1

[servers]
names = a, b

[a]
ip = 192.0.2.1
transport = quic

[b]
ip = 192.0.2.2

[diff]
target = a
criteria = opcode
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "unknown transport protocol")
	assert.ErrorIs(t, err, ErrUnknownTransportProtocol)
}

func TestLoadRejectsUnknownDiffCriteria(t *testing.T) {
	path := writeConfig(t, `
[sendrecv]
timeout = 1
jobs = 1

[servers]
names = a, b

[a]
ip = 192.0.2.1

[b]
ip = 192.0.2.2

[diff]
target = a
criteria = nonsense
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "unknown diff criteria")
	assert.ErrorIs(t, err, ErrUnknownDiffCriteria)
}

func TestLoadRejectsUnknownFieldWeight(t *testing.T) {
	path := writeConfig(t, `
[sendrecv]
timeout = 1
jobs = 1

[servers]
names = a, b

[a]
ip = 192.0.2.1

[b]
ip = 192.0.2.2

[diff]
target = a
criteria = opcode

[report]
field_weights = timeout, bogus
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "unknown field weight")
	assert.ErrorIs(t, err, ErrUnknownFieldWeight)
}

func TestLoadRejectsTooFewServers(t *testing.T) {
	path := writeConfig(t, `
[sendrecv]
timeout = 1
jobs = 1

[servers]
names = a

[a]
ip = 192.0.2.1

[diff]
target = a
criteria = opcode
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "at least two servers")
}

func TestLoadRejectsMissingServerSection(t *testing.T) {
	path := writeConfig(t, `
[sendrecv]
timeout = 1
jobs = 1

[servers]
names = a, b

[a]
ip = 192.0.2.1

[diff]
target = a
criteria = opcode
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "no [b] section")
}

func TestResolveConfigPathEnvFallback(t *testing.T) {
	t.Setenv("RESPDIFF_CONFIG", "/from/env")
	assert.Equal(t, "/from/flag", ResolveConfigPath("/from/flag"))
	assert.Equal(t, "/from/env", ResolveConfigPath(""))
}

func TestResolveConfigPathEmpty(t *testing.T) {
	t.Setenv("RESPDIFF_CONFIG", "")
	assert.Equal(t, "", ResolveConfigPath(""))
}
