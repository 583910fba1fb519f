package model

import (
	"errors"
	"math"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestNewEntity(t *testing.T) {
	t.Run("trims fields and keeps city", func(t *testing.T) {
		e, err := NewEntity(" Valutare ", "  Casa X ", strPtr(" Cluj "), EntityTypeExchangeOffice)
		require.NoError(t, err)
		assert.Equal(t, "Valutare", e.PlatformSource)
		assert.Equal(t, "Casa X", e.Name)
		require.NotNil(t, e.City)
		assert.Equal(t, "Cluj", *e.City)
	})

	t.Run("blank city becomes absent", func(t *testing.T) {
		e, err := NewEntity("Valutare", "Casa X", strPtr("   "), EntityTypeExchangeOffice)
		require.NoError(t, err)
		assert.Nil(t, e.City)
		assert.False(t, e.Key().HasCity)
	})

	t.Run("empty name fails validation", func(t *testing.T) {
		_, err := NewEntity("BNR", "  ", nil, EntityTypeBank)
		var vErr *ValidationError
		require.True(t, errors.As(err, &vErr))
		assert.Equal(t, "name", vErr.Field)
	})

	t.Run("unknown type fails validation", func(t *testing.T) {
		_, err := NewEntity("BNR", "BRD", nil, EntityType("kiosk"))
		var vErr *ValidationError
		require.True(t, errors.As(err, &vErr))
		assert.Equal(t, "type", vErr.Field)
	})
}

func TestEntityKeyMatches(t *testing.T) {
	absent := EntityKey{PlatformSource: "BNR", Name: "BRD"}
	cluj := EntityKey{PlatformSource: "BNR", Name: "BRD", City: "Cluj", HasCity: true}
	iasi := EntityKey{PlatformSource: "BNR", Name: "BRD", City: "Iasi", HasCity: true}

	assert.True(t, absent.Matches(absent))
	assert.True(t, cluj.Matches(cluj))
	assert.False(t, absent.Matches(cluj))
	assert.False(t, cluj.Matches(absent))
	assert.False(t, cluj.Matches(iasi))
	assert.False(t, absent.Matches(EntityKey{PlatformSource: "Valutare", Name: "BRD"}))

	// пустая строка при HasCity=true не равна отсутствию
	assert.False(t, absent.Matches(EntityKey{PlatformSource: "BNR", Name: "BRD", HasCity: true}))

	assert.Nil(t, absent.CityArg())
	assert.Equal(t, "Cluj", cluj.CityArg())
}

func TestNewExchangeRate(t *testing.T) {
	ts := "2025-03-01T10:15"

	r, err := NewExchangeRate(" eur ", 4.97, 5.05, ts)
	require.NoError(t, err)
	assert.Equal(t, "EUR", r.Currency)
	assert.Equal(t, 4.97, r.Buy)
	assert.Equal(t, 5.05, r.Sell)
	assert.Equal(t, ts, r.Timestamp)

	cases := []struct {
		name      string
		buy, sell float64
	}{
		{"zero buy", 0, 5},
		{"negative sell", 5, -1},
		{"nan", math.NaN(), 5},
		{"inf", math.Inf(1), 5},
		{"negative inf sell", 5, math.Inf(-1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewExchangeRate("EUR", tc.buy, tc.sell, ts)
			var vErr *ValidationError
			assert.True(t, errors.As(err, &vErr))
		})
	}

	_, err = NewExchangeRate("EUR", 1, 1, "2025-03-01 10:15")
	assert.Error(t, err)
}

func TestFormatTimestamp(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Bucharest")
	require.NoError(t, err)

	moment := time.Date(2025, 1, 15, 8, 30, 59, 0, time.UTC)
	assert.Equal(t, "2025-01-15T10:30", FormatTimestamp(moment, loc))
}
