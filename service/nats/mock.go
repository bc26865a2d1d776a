package nats

import (
	"context"
	"sync"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu            sync.RWMutex
	opportunities []*OpportunityEvent
	submissions   []*SubmissionEvent
	publishError  error
	closed        bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// PublishOpportunity records the event and returns any configured error.
func (m *MockPublisher) PublishOpportunity(ctx context.Context, event *OpportunityEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishError != nil {
		return m.publishError
	}
	m.opportunities = append(m.opportunities, event)
	return nil
}

// PublishSubmission records the event and returns any configured error.
func (m *MockPublisher) PublishSubmission(ctx context.Context, event *SubmissionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishError != nil {
		return m.publishError
	}
	m.submissions = append(m.submissions, event)
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Opportunities returns a copy of the published opportunity events.
func (m *MockPublisher) Opportunities() []*OpportunityEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*OpportunityEvent(nil), m.opportunities...)
}

// Submissions returns a copy of the published submission events.
func (m *MockPublisher) Submissions() []*SubmissionEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*SubmissionEvent(nil), m.submissions...)
}

// SetPublishError configures the mock to fail every publish.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
