package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStatusValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status RunStatus
		want   string
	}{
		{RunStatusRunning, "running"},
		{RunStatusComplete, "complete"},
		{RunStatusFailed, "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.status))
		})
	}
}

func TestParseDate(t *testing.T) {
	t.Parallel()

	d, err := ParseDate("2025-05-20")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC), d)

	_, err = ParseDate("20.05.2025")
	assert.Error(t, err)
}

func TestStoreRowToStore(t *testing.T) {
	t.Parallel()

	s := StoreRow{Code: "S1", Type: "supermarket", City: "Zagreb"}.ToStore(3)
	assert.Equal(t, int64(3), s.ChainID)
	assert.Equal(t, "S1", s.Code)
	assert.Equal(t, "Zagreb", s.City)
	assert.Nil(t, s.Lat)
}
