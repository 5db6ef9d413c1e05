package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	require.NoError(t, s.Save(ctx, KeyIncidents, payload{Name: "inc", Count: 3}))

	var got payload
	require.NoError(t, s.Load(ctx, KeyIncidents, &got))
	assert.Equal(t, payload{Name: "inc", Count: 3}, got)
}

func TestMemoryStoreLoadMissingKey(t *testing.T) {
	s := NewMemoryStore()

	var dest map[string]string
	err := s.Load(context.Background(), "missing", &dest)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, KeySOCAlerts, []string{"a"}))
	require.NoError(t, s.Delete(ctx, KeySOCAlerts))

	var dest []string
	assert.ErrorIs(t, s.Load(ctx, KeySOCAlerts, &dest), ErrNotFound)
}

func TestMemoryStoreUnmarshalableValue(t *testing.T) {
	s := NewMemoryStore()
	err := s.Save(context.Background(), "bad", make(chan int))
	assert.Error(t, err)
}
