package venue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venuemesh/internal/quote"
	"venuemesh/pkg/logging"
)

func TestNew_KnownVenues(t *testing.T) {
	logger := logging.NewNop()

	for name := range registry {
		cfg := Config{Name: quote.VenueID(name), URL: "wss://example.invalid", Symbols: []string{"BTC"}}
		a, err := New(cfg, logger)
		require.NoError(t, err)
		assert.Equal(t, name, string(a.Name()))
	}
}

func TestNew_UnknownVenue(t *testing.T) {
	_, err := New(Config{Name: "not-a-real-venue"}, logging.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownVenue)
}
