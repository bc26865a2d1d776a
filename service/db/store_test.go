package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func sampleParams(mother, status string) CreateSubmissionParams {
	return CreateSubmissionParams{
		Source:       "poll",
		MotherMint:   mother,
		MotherSymbol: "SOL",
		TargetMint:   "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		InAmount:     1_000_000_000,
		OutAmount:    1_000_500_000,
		GrossProfit:  500_000,
		NetProfit:    400_000,
		TxCost:       100_000,
		RelayFeeSOL:  0.00005,
		Status:       status,
		Channels: []ChannelAttempt{
			{Channel: "jito", Signature: "sig-jito", Attempts: 1},
			{Channel: "rpc", Attempts: 3, Error: "blockhash not found"},
		},
	}
}

func TestCreateSubmission(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()

	t.Run("landed submission", func(t *testing.T) {
		params := sampleParams("So11111111111111111111111111111111111111112", "landed")
		params.TriggerTx = strPtr("origtx")
		params.PreviewSignature = strPtr("preview")
		params.LandedChannel = strPtr("jito")

		sub, err := store.CreateSubmission(ctx, params)
		require.NoError(t, err)
		assert.NotZero(t, sub.ID)
		assert.Equal(t, "landed", sub.Status)
		require.NotNil(t, sub.TriggerTx)
		assert.Equal(t, "origtx", *sub.TriggerTx)
		require.Len(t, sub.Channels, 2)
		assert.Equal(t, "blockhash not found", sub.Channels[1].Error)
		assert.WithinDuration(t, time.Now(), sub.CreatedAt, 5*time.Second)

		got, err := store.GetSubmission(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, sub.NetProfit, got.NetProfit)
		assert.Equal(t, "jito", *got.LandedChannel)
	})

	t.Run("empty optional fields stored as null", func(t *testing.T) {
		params := sampleParams("So11111111111111111111111111111111111111112", "build_failed")
		params.Channels = nil
		params.Error = strPtr("failed to build trade at nonce: missing")

		sub, err := store.CreateSubmission(ctx, params)
		require.NoError(t, err)
		assert.Nil(t, sub.TriggerTx)
		assert.Nil(t, sub.LandedChannel)
		assert.Empty(t, sub.Channels)
	})
}

func TestGetSubmission_NotFound(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()

	_, err := store.GetSubmission(context.Background(), 987654321)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListSubmissions(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	sol := "So11111111111111111111111111111111111111112"
	jup := "JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN"

	for _, p := range []CreateSubmissionParams{
		sampleParams(sol, "landed"),
		sampleParams(sol, "failed"),
		sampleParams(jup, "landed"),
	} {
		_, err := store.CreateSubmission(ctx, p)
		require.NoError(t, err)
	}

	t.Run("all newest first", func(t *testing.T) {
		subs, err := store.ListSubmissions(ctx, ListSubmissionsParams{})
		require.NoError(t, err)
		require.Len(t, subs, 3)
		assert.Equal(t, jup, subs[0].MotherMint)
	})

	t.Run("filter by mother", func(t *testing.T) {
		subs, err := store.ListSubmissions(ctx, ListSubmissionsParams{MotherMint: sol})
		require.NoError(t, err)
		assert.Len(t, subs, 2)
	})

	t.Run("filter by status with limit", func(t *testing.T) {
		subs, err := store.ListSubmissions(ctx, ListSubmissionsParams{Status: "landed", Limit: 1})
		require.NoError(t, err)
		assert.Len(t, subs, 1)
	})

	t.Run("count by status", func(t *testing.T) {
		counts, err := store.CountByStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), counts["landed"])
		assert.Equal(t, int64(1), counts["failed"])
	})
}
