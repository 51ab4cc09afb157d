// Package service реализует бизнес-логику сервиса парковки: въезд, выезд и
// регистрацию мест и клиентов.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/parking-system/internal/clock"
	"github.com/mmeshcher/parking-system/internal/model"
	"github.com/mmeshcher/parking-system/internal/pricing"
)

// SlotRegistry владеет парковочными местами и их занятостью.
type SlotRegistry interface {
	CreateSlot(ctx context.Context, slot model.Slot) error
	FindSlotByCode(ctx context.Context, code string) (model.Slot, error)
	ClaimFreeSlot(ctx context.Context) (model.Slot, error)
	ReleaseSlot(ctx context.Context, slotID string) error
}

// ClientDirectory находит клиентов по CPF и считает их историю.
type ClientDirectory interface {
	CreateClient(ctx context.Context, client model.Client) error
	FindClientByCPF(ctx context.Context, cpf string) (model.Client, error)
	CountCompletedStays(ctx context.Context, cpf string) (int64, error)
}

// StayStore хранит стоянки.
type StayStore interface {
	CreateStay(ctx context.Context, stay model.Stay) error
	FindOpenStay(ctx context.Context, receipt string) (model.Stay, error)
	FinalizeStay(ctx context.Context, stay model.Stay) error
	ListStaysByCPF(ctx context.Context, cpf string) ([]model.Stay, error)
}

// Repository описывает контракт хранилища, используемый сервисом.
// WithTx выполняет fn атомарно: при ошибке никакие изменения внутри fn не сохраняются.
type Repository interface {
	SlotRegistry
	ClientDirectory
	StayStore
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	Close() error
}

// Service содержит бизнес-логику сервиса парковки.
type Service struct {
	repo     Repository
	logger   *zap.Logger
	clock    clock.Clock
	receipts clock.ReceiptGenerator
	tariff   pricing.Tariff
}

// Option настраивает Service.
type Option func(*Service)

// WithClock подменяет источник времени.
func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithReceipts подменяет генератор номеров чеков.
func WithReceipts(g clock.ReceiptGenerator) Option {
	return func(s *Service) {
		if g != nil {
			s.receipts = g
		}
	}
}

// WithTariff задаёт тариф.
func WithTariff(t pricing.Tariff) Option {
	return func(s *Service) {
		s.tariff = t
	}
}

// NewService создаёт новый сервис с указанным хранилищем.
func NewService(repo Repository, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		repo:     repo,
		logger:   logger,
		clock:    clock.NewSystem(),
		receipts: clock.NewReceipts(),
		tariff:   pricing.DefaultTariff(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Tariff возвращает действующий тариф.
func (s *Service) Tariff() pricing.Tariff {
	return s.tariff
}

// RegisterSlot создаёт новое парковочное место.
func (s *Service) RegisterSlot(ctx context.Context, code string, status model.SlotStatus) (model.Slot, error) {
	if !status.Valid() {
		return model.Slot{}, fmt.Errorf("invalid slot status %q", status)
	}

	slot := model.Slot{
		ID:        uuid.NewString(),
		Code:      code,
		Status:    status,
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.CreateSlot(ctx, slot); err != nil {
		return model.Slot{}, err
	}

	s.logger.Info("slot registered", zap.String("code", code), zap.String("status", string(status)))
	return slot, nil
}

// GetSlot возвращает место по коду.
func (s *Service) GetSlot(ctx context.Context, code string) (model.Slot, error) {
	return s.repo.FindSlotByCode(ctx, code)
}

// RegisterClient регистрирует клиента с уникальным CPF.
func (s *Service) RegisterClient(ctx context.Context, name, cpf, userID string) (model.Client, error) {
	client := model.Client{
		ID:     uuid.NewString(),
		Name:   name,
		CPF:    cpf,
		UserID: userID,
	}
	if err := s.repo.CreateClient(ctx, client); err != nil {
		return model.Client{}, err
	}
	return client, nil
}

// GetClient возвращает клиента по CPF.
func (s *Service) GetClient(ctx context.Context, cpf string) (model.Client, error) {
	return s.repo.FindClientByCPF(ctx, cpf)
}

// ListStays возвращает историю стоянок клиента.
func (s *Service) ListStays(ctx context.Context, cpf string) ([]model.Stay, error) {
	if _, err := s.repo.FindClientByCPF(ctx, cpf); err != nil {
		return nil, err
	}
	return s.repo.ListStaysByCPF(ctx, cpf)
}

// GetOpenStay возвращает открытую стоянку по номеру чека.
func (s *Service) GetOpenStay(ctx context.Context, receipt string) (model.Stay, error) {
	return s.repo.FindOpenStay(ctx, receipt)
}

// CheckIn оформляет въезд: находит клиента, занимает свободное место и открывает стоянку.
// Занятие места и создание стоянки фиксируются одной транзакцией, поэтому при
// ошибке место остаётся свободным.
func (s *Service) CheckIn(ctx context.Context, cpf string, vehicle model.Vehicle) (model.Stay, error) {
	var stay model.Stay

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		client, err := s.repo.FindClientByCPF(txCtx, cpf)
		if err != nil {
			return err
		}

		slot, err := s.repo.ClaimFreeSlot(txCtx)
		if err != nil {
			return err
		}

		entry := s.clock.Now()
		stay = model.Stay{
			ID:       uuid.NewString(),
			Receipt:  s.receipts.Next(entry),
			ClientID: client.ID,
			CPF:      client.CPF,
			SlotID:   slot.ID,
			SlotCode: slot.Code,
			Vehicle:  vehicle,
			EntryAt:  entry,
		}

		return s.repo.CreateStay(txCtx, stay)
	})
	if err != nil {
		s.logFailure("check-in failed", err, zap.String("cpf", cpf))
		return model.Stay{}, err
	}

	s.logger.Info("vehicle checked in",
		zap.String("receipt", stay.Receipt),
		zap.String("slot", stay.SlotCode),
		zap.String("plate", vehicle.Plate),
	)
	return stay, nil
}

// CheckOut оформляет выезд по номеру чека: рассчитывает стоимость и скидку,
// закрывает стоянку и освобождает место одной транзакцией.
//
// Скидка считается по стоянкам, закрытым до текущей: она сама ещё открыта в
// момент подсчёта и в него не попадает.
func (s *Service) CheckOut(ctx context.Context, receipt string) (model.Stay, error) {
	var stay model.Stay

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		open, err := s.repo.FindOpenStay(txCtx, receipt)
		if err != nil {
			return err
		}

		exit := s.clock.Now()
		if exit.Before(open.EntryAt) {
			s.logger.Warn("exit time before entry time, clamping",
				zap.String("receipt", receipt),
				zap.Time("entry", open.EntryAt),
				zap.Time("exit", exit),
			)
			exit = open.EntryAt
		}

		cost := s.tariff.Cost(open.EntryAt, exit)

		completed, err := s.repo.CountCompletedStays(txCtx, open.CPF)
		if err != nil {
			return err
		}
		discount := s.tariff.Discount(cost, completed)

		open.ExitAt = &exit
		open.Cost = &cost
		open.Discount = &discount

		if err := s.repo.FinalizeStay(txCtx, open); err != nil {
			return err
		}
		if err := s.repo.ReleaseSlot(txCtx, open.SlotID); err != nil {
			return err
		}

		stay = open
		return nil
	})
	if err != nil {
		s.logFailure("check-out failed", err, zap.String("receipt", receipt))
		return model.Stay{}, err
	}

	s.logger.Info("vehicle checked out",
		zap.String("receipt", stay.Receipt),
		zap.String("slot", stay.SlotCode),
		zap.Stringer("cost", *stay.Cost),
		zap.Stringer("discount", *stay.Discount),
	)
	return stay, nil
}

func (s *Service) logFailure(msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	switch {
	case errors.Is(err, model.ErrInvariant):
		s.logger.Error(msg, fields...)
	case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrConflict):
		s.logger.Debug(msg, fields...)
	default:
		s.logger.Warn(msg, fields...)
	}
}
