package trigger

import (
	"io"
	"log/slog"
	"sync"

	"github.com/brojonat/roundtrip/service/arb"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingDispatcher struct {
	mu     sync.Mutex
	trigs  []arb.Trigger
	reject bool
}

func (d *recordingDispatcher) Dispatch(trig arb.Trigger) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.reject {
		return false
	}
	d.trigs = append(d.trigs, trig)
	return true
}

func (d *recordingDispatcher) Triggers() []arb.Trigger {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]arb.Trigger(nil), d.trigs...)
}

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
