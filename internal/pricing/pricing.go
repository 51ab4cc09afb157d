// Package pricing рассчитывает стоимость стоянки и скидку за лояльность.
// Все функции чистые и не зависят от хранилища.
package pricing

import (
	"errors"
	"time"

	"github.com/mmeshcher/parking-system/internal/model"
)

const (
	// FreePeriod задаёт бесплатный интервал в начале стоянки.
	FreePeriod = 15 * time.Minute
	// FirstHour покрывается минимальной почасовой ставкой.
	FirstHour = time.Hour
	// BillingStep задаёт шаг тарификации после первого часа.
	BillingStep = 15 * time.Minute

	// StaysPerTier завершённых стоянок дают одну ступень скидки.
	StaysPerTier = 10
	// PercentPerTier задаёт скидку за одну ступень, в процентах.
	PercentPerTier = 10

	// DefaultHourRate задаёт базовую ставку за час, в центах.
	DefaultHourRate model.Money = 1000
	// DefaultMaxDiscountPercent ограничивает скидку по умолчанию, в процентах.
	DefaultMaxDiscountPercent = 50
)

var (
	// ErrInvalidHourRate возвращается при неположительной ставке.
	ErrInvalidHourRate = errors.New("hour rate must be positive")
	// ErrInvalidDiscountCap возвращается, если предел скидки вне диапазона 0..100.
	ErrInvalidDiscountCap = errors.New("max discount percent must be within 0..100")
)

// Tariff описывает ставку и предел скидки.
type Tariff struct {
	hourRate           model.Money
	maxDiscountPercent int64
}

// NewTariff создаёт тариф с базовой ставкой в центах и пределом скидки в процентах.
func NewTariff(hourRate model.Money, maxDiscountPercent int) (Tariff, error) {
	if hourRate <= 0 {
		return Tariff{}, ErrInvalidHourRate
	}
	if maxDiscountPercent < 0 || maxDiscountPercent > 100 {
		return Tariff{}, ErrInvalidDiscountCap
	}
	return Tariff{
		hourRate:           hourRate,
		maxDiscountPercent: int64(maxDiscountPercent),
	}, nil
}

// DefaultTariff возвращает тариф со ставками по умолчанию.
func DefaultTariff() Tariff {
	return Tariff{
		hourRate:           DefaultHourRate,
		maxDiscountPercent: DefaultMaxDiscountPercent,
	}
}

// HourRate возвращает базовую ставку за час.
func (t Tariff) HourRate() model.Money {
	return t.hourRate
}

// QuarterRate возвращает ставку за четверть часа (остаток от деления отбрасывается).
func (t Tariff) QuarterRate() model.Money {
	return t.hourRate / 4
}

// MaxDiscountPercent возвращает предел скидки в процентах.
func (t Tariff) MaxDiscountPercent() int {
	return int(t.maxDiscountPercent)
}

// Cost рассчитывает стоимость стоянки между entry и exit.
//
// До 15 минут включительно стоянка бесплатна, до часа включительно стоит
// базовую ставку, далее каждая начатая четверть часа добавляет QuarterRate.
func (t Tariff) Cost(entry, exit time.Time) model.Money {
	elapsed := exit.Sub(entry)

	switch {
	case elapsed <= FreePeriod:
		return 0
	case elapsed <= FirstHour:
		return t.hourRate
	}

	extra := elapsed - FirstHour
	steps := int64(extra / BillingStep)
	if extra%BillingStep != 0 {
		steps++
	}

	return t.hourRate + model.Money(steps)*t.QuarterRate()
}

// Discount рассчитывает скидку по числу ранее завершённых стоянок клиента:
// каждые полные 10 стоянок дают 10%, но не больше предела тарифа.
// Результат округляется вниз до цента и лежит в [0, cost].
func (t Tariff) Discount(cost model.Money, completedStays int64) model.Money {
	if cost <= 0 || completedStays < StaysPerTier {
		return 0
	}

	percent := (completedStays / StaysPerTier) * PercentPerTier
	if percent > t.maxDiscountPercent {
		percent = t.maxDiscountPercent
	}

	discount := cost * model.Money(percent) / 100
	if discount > cost {
		return cost
	}
	if discount < 0 {
		return 0
	}
	return discount
}
