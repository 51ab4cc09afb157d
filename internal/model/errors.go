package model

import (
	"errors"
	"fmt"
)

// Виды ошибок. Конкретные ошибки оборачивают один из них, поэтому вызывающий
// код проверяет вид через errors.Is.
var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("conflict")
	ErrInvariant = errors.New("invariant violation")
)

var (
	// ErrClientNotFound возвращается, если клиент с указанным CPF не зарегистрирован.
	ErrClientNotFound = fmt.Errorf("client %w", ErrNotFound)
	// ErrSlotNotFound возвращается, если место с указанным кодом или идентификатором не существует.
	ErrSlotNotFound = fmt.Errorf("slot %w", ErrNotFound)
	// ErrNoFreeSlot возвращается, если свободных мест нет.
	ErrNoFreeSlot = fmt.Errorf("free slot %w", ErrNotFound)
	// ErrOpenStayNotFound возвращается, если открытой стоянки с таким чеком нет:
	// чек неизвестен или выезд уже оформлен.
	ErrOpenStayNotFound = fmt.Errorf("open stay %w", ErrNotFound)

	// ErrDuplicateSlotCode возвращается при регистрации места с существующим кодом.
	ErrDuplicateSlotCode = fmt.Errorf("slot code %w", ErrConflict)
	// ErrDuplicateClient возвращается при регистрации клиента с существующим CPF.
	ErrDuplicateClient = fmt.Errorf("client cpf %w", ErrConflict)
	// ErrDuplicateReceipt возвращается, если сгенерированный чек уже занят.
	ErrDuplicateReceipt = fmt.Errorf("receipt %w", ErrConflict)

	// ErrSlotNotOccupied возвращается при освобождении места, которое не занято.
	ErrSlotNotOccupied = fmt.Errorf("slot not occupied: %w", ErrInvariant)
)
