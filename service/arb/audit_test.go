package arb

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingAudit keeps lines in memory.
type recordingAudit struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordingAudit) Write(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func (r *recordingAudit) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func TestFileAudit_AppendsConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), SimulationAuditFile)
	a := NewFileAudit("simulation", path, 512, nil, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				a.Write("[SIMULATE] line")
			}
		}()
	}
	wg.Wait()
	a.Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 200)
	for _, l := range lines {
		assert.Equal(t, "[SIMULATE] line", l)
	}
}

func TestFileAudit_WriteAfterCloseIsDropped(t *testing.T) {
	path := filepath.Join(t.TempDir(), BigTradeAuditFile)
	a := NewFileAudit("big_trade", path, 4, nil, testLogger())
	a.Write("first")
	a.Close()
	a.Close()

	assert.NotPanics(t, func() { a.Write("second") })

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first\n", string(data))
}

func TestFileAudit_UnwritablePathIsSwallowed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "dir", "logs.txt")
	a := NewFileAudit("simulation", path, 4, nil, testLogger())
	assert.NotPanics(t, func() {
		a.Write("lost")
		a.Close()
	})
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
