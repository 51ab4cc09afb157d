package pricing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/parking-system/internal/model"
)

var entry = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func TestNewTariff(t *testing.T) {
	_, err := NewTariff(0, 10)
	assert.ErrorIs(t, err, ErrInvalidHourRate)

	_, err = NewTariff(1000, 101)
	assert.ErrorIs(t, err, ErrInvalidDiscountCap)

	_, err = NewTariff(1000, -1)
	assert.ErrorIs(t, err, ErrInvalidDiscountCap)

	tariff, err := NewTariff(1200, 30)
	require.NoError(t, err)
	assert.Equal(t, model.Money(1200), tariff.HourRate())
	assert.Equal(t, model.Money(300), tariff.QuarterRate())
	assert.Equal(t, 30, tariff.MaxDiscountPercent())
}

func TestCost(t *testing.T) {
	tariff := DefaultTariff()
	base := tariff.HourRate()
	quarter := tariff.QuarterRate()

	tests := []struct {
		name    string
		elapsed time.Duration
		want    model.Money
	}{
		{name: "zero", elapsed: 0, want: 0},
		{name: "one minute", elapsed: time.Minute, want: 0},
		{name: "exactly fifteen minutes", elapsed: 15 * time.Minute, want: 0},
		{name: "just after grace period", elapsed: 15*time.Minute + time.Second, want: base},
		{name: "half an hour", elapsed: 30 * time.Minute, want: base},
		{name: "exactly one hour", elapsed: time.Hour, want: base},
		{name: "one second over an hour", elapsed: time.Hour + time.Second, want: base + quarter},
		{name: "seventy five minutes", elapsed: 75 * time.Minute, want: base + quarter},
		{name: "ninety minutes", elapsed: 90 * time.Minute, want: base + 2*quarter},
		{name: "ninety one minutes", elapsed: 91 * time.Minute, want: base + 3*quarter},
		{name: "three hours", elapsed: 3 * time.Hour, want: base + 8*quarter},
		{name: "exit before entry", elapsed: -time.Hour, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tariff.Cost(entry, entry.Add(tt.elapsed))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCostFreeAndFirstHourRanges(t *testing.T) {
	tariff := DefaultTariff()

	for m := 0; m <= 15; m++ {
		assert.Zero(t, tariff.Cost(entry, entry.Add(time.Duration(m)*time.Minute)), "minute %d", m)
	}
	for m := 16; m <= 60; m++ {
		assert.Equal(t, tariff.HourRate(), tariff.Cost(entry, entry.Add(time.Duration(m)*time.Minute)), "minute %d", m)
	}
}

func TestDiscount(t *testing.T) {
	tariff := DefaultTariff()
	const cost model.Money = 1500

	tests := []struct {
		name      string
		completed int64
		want      model.Money
	}{
		{name: "no history", completed: 0, want: 0},
		{name: "nine stays", completed: 9, want: 0},
		{name: "ten stays", completed: 10, want: 150},
		{name: "nineteen stays", completed: 19, want: 150},
		{name: "twenty stays", completed: 20, want: 300},
		{name: "twenty five stays", completed: 25, want: 300},
		{name: "capped at fifty percent", completed: 120, want: 750},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tariff.Discount(cost, tt.completed))
		})
	}
}

func TestDiscountBounds(t *testing.T) {
	full, err := NewTariff(1000, 100)
	require.NoError(t, err)

	assert.Equal(t, model.Money(999), full.Discount(999, 1000))
	assert.Zero(t, full.Discount(0, 50))
	assert.Zero(t, full.Discount(-10, 50))

	none, err := NewTariff(1000, 0)
	require.NoError(t, err)
	assert.Zero(t, none.Discount(1000, 50))
}

func TestDiscountRoundsDown(t *testing.T) {
	tariff := DefaultTariff()
	// 10% от 1.25 = 0.125, округляется вниз до 0.12
	assert.Equal(t, model.Money(12), tariff.Discount(125, 10))
}
