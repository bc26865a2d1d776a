package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brojonat/roundtrip/service/metrics"
)

// ErrNotFound is returned when a submission does not exist.
var ErrNotFound = errors.New("submission not found")

const schema = `
CREATE TABLE IF NOT EXISTS submissions (
	id                BIGSERIAL PRIMARY KEY,
	source            TEXT NOT NULL,
	trigger_tx        TEXT,
	mother_mint       TEXT NOT NULL,
	mother_symbol     TEXT NOT NULL,
	target_mint       TEXT NOT NULL,
	in_amount         BIGINT NOT NULL,
	out_amount        BIGINT NOT NULL,
	gross_profit      BIGINT NOT NULL,
	net_profit        BIGINT NOT NULL,
	tx_cost           BIGINT NOT NULL,
	relay_fee_sol     DOUBLE PRECISION NOT NULL DEFAULT 0,
	status            TEXT NOT NULL,
	preview_signature TEXT,
	landed_channel    TEXT,
	error             TEXT,
	channels          JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS submissions_created_at_idx ON submissions (created_at DESC);
CREATE INDEX IF NOT EXISTS submissions_mother_idx ON submissions (mother_mint, created_at DESC);
`

const submissionColumns = `id, source, trigger_tx, mother_mint, mother_symbol, target_mint,
	in_amount, out_amount, gross_profit, net_profit, tx_cost, relay_fee_sol,
	status, preview_signature, landed_channel, error, channels, created_at`

// Store persists the submission ledger.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// The metrics argument may be nil.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{pool: pool, metrics: m}
}

// Connect opens a pool and verifies it with a ping.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the submissions table and its indexes if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// ChannelAttempt is one channel's outcome stored alongside a submission.
type ChannelAttempt struct {
	Channel   string `json:"channel"`
	Signature string `json:"signature,omitempty"`
	Attempts  int    `json:"attempts"`
	Error     string `json:"error,omitempty"`
}

// Submission is one row of the ledger.
type Submission struct {
	ID               int64            `json:"id"`
	Source           string           `json:"source"`
	TriggerTx        *string          `json:"trigger_tx,omitempty"`
	MotherMint       string           `json:"mother_mint"`
	MotherSymbol     string           `json:"mother_symbol"`
	TargetMint       string           `json:"target_mint"`
	InAmount         int64            `json:"in_amount"`
	OutAmount        int64            `json:"out_amount"`
	GrossProfit      int64            `json:"gross_profit"`
	NetProfit        int64            `json:"net_profit"`
	TxCost           int64            `json:"tx_cost"`
	RelayFeeSOL      float64          `json:"relay_fee_sol"`
	Status           string           `json:"status"`
	PreviewSignature *string          `json:"preview_signature,omitempty"`
	LandedChannel    *string          `json:"landed_channel,omitempty"`
	Error            *string          `json:"error,omitempty"`
	Channels         []ChannelAttempt `json:"channels"`
	CreatedAt        time.Time        `json:"created_at"`
}

// CreateSubmissionParams contains the parameters for recording a submission.
type CreateSubmissionParams struct {
	Source           string
	TriggerTx        *string
	MotherMint       string
	MotherSymbol     string
	TargetMint       string
	InAmount         int64
	OutAmount        int64
	GrossProfit      int64
	NetProfit        int64
	TxCost           int64
	RelayFeeSOL      float64
	Status           string
	PreviewSignature *string
	LandedChannel    *string
	Error            *string
	Channels         []ChannelAttempt
}

// ListSubmissionsParams filters and paginates the ledger. Empty strings
// match everything.
type ListSubmissionsParams struct {
	MotherMint string
	Status     string
	Limit      int32
	Offset     int32
}

// CreateSubmission inserts a new ledger row.
func (s *Store) CreateSubmission(ctx context.Context, params CreateSubmissionParams) (*Submission, error) {
	channels := params.Channels
	if channels == nil {
		channels = []ChannelAttempt{}
	}
	raw, err := json.Marshal(channels)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal channels: %w", err)
	}

	start := time.Now()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO submissions (
			source, trigger_tx, mother_mint, mother_symbol, target_mint,
			in_amount, out_amount, gross_profit, net_profit, tx_cost, relay_fee_sol,
			status, preview_signature, landed_channel, error, channels
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING `+submissionColumns,
		params.Source,
		pgtextFromStringPtr(params.TriggerTx),
		params.MotherMint,
		params.MotherSymbol,
		params.TargetMint,
		params.InAmount,
		params.OutAmount,
		params.GrossProfit,
		params.NetProfit,
		params.TxCost,
		params.RelayFeeSOL,
		params.Status,
		pgtextFromStringPtr(params.PreviewSignature),
		pgtextFromStringPtr(params.LandedChannel),
		pgtextFromStringPtr(params.Error),
		raw,
	)
	sub, err := scanSubmission(row)
	s.metrics.RecordDBQuery("insert", "submissions", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("failed to create submission: %w", err)
	}
	return sub, nil
}

// GetSubmission retrieves a submission by id.
func (s *Store) GetSubmission(ctx context.Context, id int64) (*Submission, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id)
	sub, err := scanSubmission(row)
	s.metrics.RecordDBQuery("select", "submissions", time.Since(start).Seconds(), err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return sub, nil
}

// ListSubmissions returns submissions newest first.
func (s *Store) ListSubmissions(ctx context.Context, params ListSubmissionsParams) ([]*Submission, error) {
	if params.Limit <= 0 {
		params.Limit = 50
	}

	start := time.Now()
	rows, err := s.pool.Query(ctx, `
		SELECT `+submissionColumns+`
		FROM submissions
		WHERE ($1::text = '' OR mother_mint = $1)
		  AND ($2::text = '' OR status = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4`,
		params.MotherMint, params.Status, params.Limit, params.Offset,
	)
	if err != nil {
		s.metrics.RecordDBQuery("select", "submissions", time.Since(start).Seconds(), err)
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	var subs []*Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			s.metrics.RecordDBQuery("select", "submissions", time.Since(start).Seconds(), err)
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		subs = append(subs, sub)
	}
	err = rows.Err()
	s.metrics.RecordDBQuery("select", "submissions", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	return subs, nil
}

// CountByStatus returns the number of submissions per status.
func (s *Store) CountByStatus(ctx context.Context) (map[string]int64, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM submissions GROUP BY status`)
	if err != nil {
		s.metrics.RecordDBQuery("count", "submissions", time.Since(start).Seconds(), err)
		return nil, fmt.Errorf("failed to count submissions: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[status] = n
	}
	err = rows.Err()
	s.metrics.RecordDBQuery("count", "submissions", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("failed to count submissions: %w", err)
	}
	return counts, nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func scanSubmission(row pgx.Row) (*Submission, error) {
	var (
		sub                                  Submission
		triggerTx, preview, landed, errorMsg pgtype.Text
		channels                             []byte
		createdAt                            pgtype.Timestamptz
	)
	err := row.Scan(
		&sub.ID,
		&sub.Source,
		&triggerTx,
		&sub.MotherMint,
		&sub.MotherSymbol,
		&sub.TargetMint,
		&sub.InAmount,
		&sub.OutAmount,
		&sub.GrossProfit,
		&sub.NetProfit,
		&sub.TxCost,
		&sub.RelayFeeSOL,
		&sub.Status,
		&preview,
		&landed,
		&errorMsg,
		&channels,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}
	sub.TriggerTx = stringPtrFromPgtext(triggerTx)
	sub.PreviewSignature = stringPtrFromPgtext(preview)
	sub.LandedChannel = stringPtrFromPgtext(landed)
	sub.Error = stringPtrFromPgtext(errorMsg)
	sub.CreatedAt = createdAt.Time
	if len(channels) > 0 {
		if err := json.Unmarshal(channels, &sub.Channels); err != nil {
			return nil, fmt.Errorf("failed to decode channels: %w", err)
		}
	}
	return &sub, nil
}

func pgtextFromStringPtr(s *string) pgtype.Text {
	if s == nil || *s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func stringPtrFromPgtext(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}
