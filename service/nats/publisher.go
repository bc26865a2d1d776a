package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/brojonat/roundtrip/service/metrics"
)

// Publisher emits arbitrage events.
type Publisher interface {
	// PublishOpportunity publishes to "arb.opportunities.{mother_mint}".
	PublishOpportunity(ctx context.Context, event *OpportunityEvent) error

	// PublishSubmission publishes to "arb.submissions.{mother_mint}".
	PublishSubmission(ctx context.Context, event *SubmissionEvent) error

	Close() error
}

const (
	// StreamName is the JetStream stream holding both event kinds.
	StreamName = "ARBITRAGE"

	OpportunitySubjects = "arb.opportunities.*"
	SubmissionSubjects  = "arb.submissions.*"

	// StreamRetention is how long events are kept.
	StreamRetention = 7 * 24 * time.Hour

	// DuplicateWindow is how long JetStream remembers submission message IDs.
	DuplicateWindow = 10 * time.Minute
)

// OpportunitySubject returns the subject for a mother mint.
func OpportunitySubject(mint string) string {
	return "arb.opportunities." + mint
}

// SubmissionSubject returns the subject for a mother mint.
func SubmissionSubject(mint string) string {
	return "arb.submissions." + mint
}

// StreamConfig is the ARBITRAGE stream definition. Applying it to an
// existing stream updates subjects and limits in place.
func StreamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Round-trip arbitrage opportunities and submissions",
		Subjects:    []string{OpportunitySubjects, SubmissionSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Duplicates:  DuplicateWindow,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	}
}

// Connect dials NATS with the reconnect policy shared by publishers and subscribers.
func Connect(natsURL, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name(name),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

// JetStreamPublisher publishes arbitrage events to the ARBITRAGE stream.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewPublisher connects to NATS and applies the stream definition.
func NewPublisher(natsURL string, m *metrics.Metrics, logger *slog.Logger) (*JetStreamPublisher, error) {
	nc, err := Connect(natsURL, "roundtrip-publisher")
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	stream, err := js.CreateOrUpdateStream(ctx, StreamConfig())
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to apply stream %s: %w", StreamName, err)
	}

	logger = logger.With("component", "nats_publisher")
	logger.Info("NATS publisher initialized",
		"url", natsURL,
		"stream", StreamName,
		"messages", stream.CachedInfo().State.Msgs,
	)

	return &JetStreamPublisher{
		nc:      nc,
		js:      js,
		metrics: m,
		logger:  logger,
	}, nil
}

func (p *JetStreamPublisher) publish(ctx context.Context, subject string, event any, opts ...jetstream.PublishOpt) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	start := time.Now()
	ack, err := p.js.Publish(ctx, subject, data, opts...)
	status := "success"
	switch {
	case err != nil:
		status = "error"
	case ack.Duplicate:
		status = "duplicate"
	}
	p.metrics.RecordNATSPublish(subject, status, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	p.logger.Debug("published event", "subject", subject, "seq", ack.Sequence, "duplicate", ack.Duplicate)
	return nil
}

// PublishOpportunity publishes a selected opportunity.
func (p *JetStreamPublisher) PublishOpportunity(ctx context.Context, event *OpportunityEvent) error {
	return p.publish(ctx, OpportunitySubject(event.MotherMint), event)
}

// PublishSubmission publishes a submission outcome. Events carrying a
// preview signature are deduplicated on it.
func (p *JetStreamPublisher) PublishSubmission(ctx context.Context, event *SubmissionEvent) error {
	var opts []jetstream.PublishOpt
	if event.PreviewSignature != "" {
		opts = append(opts, jetstream.WithMsgID(event.PreviewSignature))
	}
	return p.publish(ctx, SubmissionSubject(event.MotherMint), event, opts...)
}

// Close closes the NATS connection.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}
