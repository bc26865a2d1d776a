package temporal

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockScheduler is a mock implementation of Scheduler for testing.
type MockScheduler struct {
	mu        sync.Mutex
	exists    bool
	interval  time.Duration
	input     PollWatchlistInput
	upserts   int
	upsertErr error
	deleteErr error
}

// NewMockScheduler creates a new MockScheduler.
func NewMockScheduler() *MockScheduler {
	return &MockScheduler{}
}

// UpsertPollSchedule records the schedule.
func (m *MockScheduler) UpsertPollSchedule(ctx context.Context, interval time.Duration, input PollWatchlistInput) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.exists = true
	m.interval = interval
	m.input = input
	m.upserts++
	return nil
}

// DeletePollSchedule removes the recorded schedule.
func (m *MockScheduler) DeletePollSchedule(ctx context.Context) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.exists {
		return fmt.Errorf("schedule %q not found", ScheduleID)
	}
	m.exists = false
	return nil
}

// Schedule returns the recorded interval and input, and whether the schedule exists.
func (m *MockScheduler) Schedule() (time.Duration, PollWatchlistInput, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interval, m.input, m.exists
}

// Upserts returns how many times UpsertPollSchedule succeeded.
func (m *MockScheduler) Upserts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upserts
}

// SetUpsertError configures the mock to fail UpsertPollSchedule.
func (m *MockScheduler) SetUpsertError(err error) {
	m.upsertErr = err
}

// SetDeleteError configures the mock to fail DeletePollSchedule.
func (m *MockScheduler) SetDeleteError(err error) {
	m.deleteErr = err
}
