package diag

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSampleNeverPanics(t *testing.T) {
	snap := Sample("")
	assert.GreaterOrEqual(t, snap.NumCPU, 1)
}

func TestLogWritesStructuredEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	Snapshot{NumCPU: 4, CPUUsedPercent: 12.5}.Log(logger)
	assert.Contains(t, buf.String(), "host resource snapshot")
	assert.Contains(t, buf.String(), "num_cpu=4")
}
