// Package model содержит доменные сущности сервиса парковки.
package model

import (
	"fmt"
	"time"
)

// SlotStatus описывает состояние парковочного места.
type SlotStatus string

const (
	SlotStatusFree     SlotStatus = "FREE"
	SlotStatusOccupied SlotStatus = "OCCUPIED"
)

// Valid сообщает, является ли статус одним из допустимых значений.
func (s SlotStatus) Valid() bool {
	return s == SlotStatusFree || s == SlotStatusOccupied
}

// Slot представляет одно физическое парковочное место.
type Slot struct {
	ID        string
	Code      string
	Status    SlotStatus
	CreatedAt time.Time
}

// Client описывает клиента парковки. CPF уникален и не меняется.
type Client struct {
	ID     string
	Name   string
	CPF    string
	UserID string
}

// Vehicle содержит данные автомобиля, указанные при въезде.
type Vehicle struct {
	Plate string
	Brand string
	Model string
	Color string
}

// StayState описывает состояние стоянки.
type StayState string

const (
	StayOpen   StayState = "OPEN"
	StayClosed StayState = "CLOSED"
)

// Money хранит денежную сумму в центах.
type Money int64

// Float возвращает сумму в денежных единицах.
func (m Money) Float() float64 {
	return float64(m) / 100
}

func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// Stay описывает одну стоянку от въезда до выезда.
// Клиент и место хранятся ссылками по идентификатору.
type Stay struct {
	ID       string
	Receipt  string
	ClientID string
	CPF      string
	SlotID   string
	SlotCode string
	Vehicle  Vehicle
	EntryAt  time.Time
	ExitAt   *time.Time
	Cost     *Money
	Discount *Money
}

// State возвращает состояние стоянки: без времени выезда она открыта.
func (s Stay) State() StayState {
	if s.ExitAt == nil {
		return StayOpen
	}
	return StayClosed
}

// Total возвращает сумму к оплате с учётом скидки.
func (s Stay) Total() Money {
	if s.Cost == nil {
		return 0
	}
	total := *s.Cost
	if s.Discount != nil {
		total -= *s.Discount
	}
	return total
}
