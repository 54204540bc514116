package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pricewatch/internal/model"
)

// mockSource implements Source for testing.
type mockSource struct {
	runs     []model.ImportRun
	stats    []model.ChainStats
	runsErr  error
	statsErr error
}

func (m *mockSource) ListImportRuns(_ context.Context, limit int) ([]model.ImportRun, error) {
	if m.runsErr != nil {
		return nil, m.runsErr
	}
	if len(m.runs) > limit {
		return m.runs[:limit], nil
	}
	return m.runs, nil
}

func (m *mockSource) ListLatestChainStats(_ context.Context) ([]model.ChainStats, error) {
	return m.stats, m.statsErr
}

func day(d int) time.Time {
	return time.Date(2025, 5, d, 0, 0, 0, 0, time.UTC)
}

func TestCollector_Collect(t *testing.T) {
	now := time.Now().UTC()
	done := now.Add(-2 * time.Hour)
	oldDone := now.Add(-200 * time.Hour)

	src := &mockSource{
		runs: []model.ImportRun{
			{Status: model.RunStatusRunning, StartedAt: now.Add(-time.Minute)},
			{Status: model.RunStatusComplete, NewPrices: 1200, StartedAt: now.Add(-3 * time.Hour), CompletedAt: &done},
			{Status: model.RunStatusFailed, StartedAt: now.Add(-5 * time.Hour)},
			{Status: model.RunStatusComplete, NewPrices: 999, StartedAt: now.Add(-201 * time.Hour), CompletedAt: &oldDone},
		},
		stats: []model.ChainStats{
			{ChainCode: "konzum", PriceDate: day(20)},
			{ChainCode: "spar", PriceDate: day(19)},
			{ChainCode: "lidl", PriceDate: day(20)},
		},
	}

	snap, err := NewCollector(src).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 3, snap.RunsTotal)
	assert.Equal(t, 1, snap.RunsComplete)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.Equal(t, 1, snap.RunsRunning)
	assert.InDelta(t, 0.5, snap.FailRate, 1e-9)
	assert.Equal(t, int64(1200), snap.NewPrices)
	require.NotNil(t, snap.LastCompletedAt)
	assert.True(t, done.Equal(*snap.LastCompletedAt))
	assert.Equal(t, day(20), snap.LatestPriceDate)
	assert.Equal(t, []string{"spar"}, snap.LaggingChains)
	assert.Equal(t, 24, snap.LookbackHours)
}

func TestCollector_Empty(t *testing.T) {
	snap, err := NewCollector(&mockSource{}).Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Zero(t, snap.RunsTotal)
	assert.Zero(t, snap.FailRate)
	assert.Nil(t, snap.LastCompletedAt)
	assert.Empty(t, snap.LaggingChains)
}

func TestCollector_Errors(t *testing.T) {
	_, err := NewCollector(&mockSource{runsErr: errors.New("db down")}).Collect(context.Background(), 24)
	assert.ErrorContains(t, err, "list import runs")

	_, err = NewCollector(&mockSource{statsErr: errors.New("db down")}).Collect(context.Background(), 24)
	assert.ErrorContains(t, err, "list chain stats")
}
