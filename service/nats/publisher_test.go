package nats

import (
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
)

func TestSubjects(t *testing.T) {
	mint := "So11111111111111111111111111111111111111112"
	assert.Equal(t, "arb.opportunities."+mint, OpportunitySubject(mint))
	assert.Equal(t, "arb.submissions."+mint, SubmissionSubject(mint))
}

func TestStreamConfig(t *testing.T) {
	cfg := StreamConfig()
	assert.Equal(t, StreamName, cfg.Name)
	assert.ElementsMatch(t, []string{OpportunitySubjects, SubmissionSubjects}, cfg.Subjects)
	assert.Equal(t, jetstream.LimitsPolicy, cfg.Retention)
	assert.Equal(t, StreamRetention, cfg.MaxAge)
	assert.Equal(t, DuplicateWindow, cfg.Duplicates)
}
