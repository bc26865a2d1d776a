package arb

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brojonat/roundtrip/service/metrics"
)

// Audit file names.
const (
	SimulationAuditFile = "logs.txt"
	BigTradeAuditFile   = "big_trades.txt"
)

// AuditSink receives human-readable audit lines. Write never blocks and
// never reports failure.
type AuditSink interface {
	Write(line string)
}

// NopAudit discards everything.
type NopAudit struct{}

func (NopAudit) Write(string) {}

// Stamp formats t the way audit lines are prefixed.
func Stamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05.000")
}

// FileAudit appends lines to a file from a single writer goroutine. Callers
// hand lines to a buffered channel; when the buffer is full the line is
// dropped and counted.
type FileAudit struct {
	name    string
	path    string
	lines   chan string
	stop    chan struct{}
	done    chan struct{}
	closed  atomic.Bool
	once    sync.Once
	mu      sync.Mutex
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewFileAudit starts the writer goroutine for path. name labels metrics.
func NewFileAudit(name, path string, buffer int, m *metrics.Metrics, logger *slog.Logger) *FileAudit {
	if buffer <= 0 {
		buffer = 1024
	}
	a := &FileAudit{
		name:    name,
		path:    path,
		lines:   make(chan string, buffer),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		metrics: m,
		logger:  logger.With("component", "audit", "sink", name),
	}
	go a.run()
	return a
}

// Write queues a line for the file.
func (a *FileAudit) Write(line string) {
	if a.closed.Load() {
		a.metrics.RecordAuditDropped(a.name)
		return
	}
	select {
	case a.lines <- line:
	default:
		a.metrics.RecordAuditDropped(a.name)
	}
}

// Close flushes queued lines and stops the writer.
func (a *FileAudit) Close() {
	a.once.Do(func() {
		a.closed.Store(true)
		close(a.stop)
		<-a.done
	})
}

func (a *FileAudit) run() {
	defer close(a.done)
	for {
		select {
		case line := <-a.lines:
			a.flush(line)
		case <-a.stop:
			for {
				select {
				case line := <-a.lines:
					a.flush(line)
				default:
					return
				}
			}
		}
	}
}

// flush writes line plus anything else already queued in one open/append.
func (a *FileAudit) flush(first string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		a.metrics.RecordAuditDropped(a.name)
		a.logger.Debug("failed to open audit file", "path", a.path, "error", err)
		return
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, first)
	for more := true; more; {
		select {
		case line := <-a.lines:
			fmt.Fprintln(w, line)
		default:
			more = false
		}
	}
	if err := w.Flush(); err != nil {
		a.metrics.RecordAuditDropped(a.name)
		a.logger.Debug("failed to write audit file", "path", a.path, "error", err)
	}
}
