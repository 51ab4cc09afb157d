// Package handler содержит HTTP-обработчики API сервиса парковки.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mmeshcher/parking-system/internal/middleware"
	"github.com/mmeshcher/parking-system/internal/model"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterSlot(ctx context.Context, code string, status model.SlotStatus) (model.Slot, error)
	GetSlot(ctx context.Context, code string) (model.Slot, error)
	RegisterClient(ctx context.Context, name, cpf, userID string) (model.Client, error)
	GetClient(ctx context.Context, cpf string) (model.Client, error)
	ListStays(ctx context.Context, cpf string) ([]model.Stay, error)
	CheckIn(ctx context.Context, cpf string, vehicle model.Vehicle) (model.Stay, error)
	GetOpenStay(ctx context.Context, receipt string) (model.Stay, error)
	CheckOut(ctx context.Context, receipt string) (model.Stay, error)
}

// Handler реализует HTTP-обработчики API сервиса парковки.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	rateLimiter    *middleware.RateLimiter
	validate       *validator.Validate
}

// Option настраивает Handler.
type Option func(*Handler)

// WithAuth включает проверку Bearer-токенов для /api/v1.
func WithAuth(auth *middleware.AuthMiddleware) Option {
	return func(h *Handler) {
		h.authMiddleware = auth
	}
}

// WithRateLimiter включает ограничение частоты запросов.
func WithRateLimiter(l *middleware.RateLimiter) Option {
	return func(h *Handler) {
		h.rateLimiter = l
	}
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		service:  s,
		logger:   logger,
		validate: newValidator(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

// writeServiceError отображает ошибку бизнес-логики на HTTP-статус.
func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, model.ErrClientNotFound):
		writeError(w, http.StatusNotFound, "client_not_found", err.Error())
	case errors.Is(err, model.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, model.ErrNoFreeSlot):
		writeError(w, http.StatusNotFound, "no_free_slot", err.Error())
	case errors.Is(err, model.ErrOpenStayNotFound):
		writeError(w, http.StatusNotFound, "stay_not_found", err.Error())
	case errors.Is(err, model.ErrDuplicateSlotCode):
		writeError(w, http.StatusConflict, "duplicate_slot_code", err.Error())
	case errors.Is(err, model.ErrDuplicateClient):
		writeError(w, http.StatusConflict, "duplicate_client", err.Error())
	case errors.Is(err, model.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		h.logger.Error(op+" error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", http.StatusText(http.StatusInternalServerError))
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return false
	}
	return true
}

type slotRequest struct {
	Code   string `json:"code" validate:"slotcode"`
	Status string `json:"status" validate:"omitempty,oneof=FREE OCCUPIED"`
}

type slotResponse struct {
	ID     string `json:"id"`
	Code   string `json:"code"`
	Status string `json:"status"`
}

func newSlotResponse(s model.Slot) slotResponse {
	return slotResponse{ID: s.ID, Code: s.Code, Status: string(s.Status)}
}

// CreateSlot регистрирует новое парковочное место.
func (h *Handler) CreateSlot(w http.ResponseWriter, r *http.Request) {
	var req slotRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	req.Status = strings.ToUpper(strings.TrimSpace(req.Status))
	if code, msg, ok := h.validateRequest(req); !ok {
		writeError(w, http.StatusUnprocessableEntity, code, msg)
		return
	}

	status := model.SlotStatus(req.Status)
	if status == "" {
		status = model.SlotStatusFree
	}

	slot, err := h.service.RegisterSlot(r.Context(), req.Code, status)
	if err != nil {
		h.writeServiceError(w, "register slot", err)
		return
	}

	w.Header().Set("Location", "/api/v1/slots/"+url.PathEscape(slot.Code))
	writeJSON(w, http.StatusCreated, newSlotResponse(slot))
}

// GetSlot возвращает место по коду.
func (h *Handler) GetSlot(w http.ResponseWriter, r *http.Request) {
	slot, err := h.service.GetSlot(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeServiceError(w, "get slot", err)
		return
	}
	writeJSON(w, http.StatusOK, newSlotResponse(slot))
}

type clientRequest struct {
	Name string `json:"name" validate:"clientname"`
	CPF  string `json:"cpf" validate:"cpf"`
}

type clientResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	CPF  string `json:"cpf"`
}

func newClientResponse(c model.Client) clientResponse {
	return clientResponse{ID: c.ID, Name: c.Name, CPF: c.CPF}
}

// CreateClient регистрирует клиента.
func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req clientRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if code, msg, ok := h.validateRequest(req); !ok {
		writeError(w, http.StatusUnprocessableEntity, code, msg)
		return
	}

	userID, _ := middleware.GetUserIDFromContext(r.Context())

	client, err := h.service.RegisterClient(r.Context(), req.Name, req.CPF, userID)
	if err != nil {
		h.writeServiceError(w, "register client", err)
		return
	}

	w.Header().Set("Location", "/api/v1/clients/"+url.PathEscape(client.CPF))
	writeJSON(w, http.StatusCreated, newClientResponse(client))
}

// GetClient возвращает клиента по CPF.
func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	client, err := h.service.GetClient(r.Context(), chi.URLParam(r, "cpf"))
	if err != nil {
		h.writeServiceError(w, "get client", err)
		return
	}
	writeJSON(w, http.StatusOK, newClientResponse(client))
}

type stayResponse struct {
	Receipt   string   `json:"receipt"`
	Plate     string   `json:"plate"`
	Brand     string   `json:"brand"`
	Model     string   `json:"model"`
	Color     string   `json:"color"`
	ClientCPF string   `json:"clientCpf"`
	SlotCode  string   `json:"slotCode"`
	State     string   `json:"state"`
	EntryAt   string   `json:"entryAt"`
	ExitAt    string   `json:"exitAt,omitempty"`
	Cost      *float64 `json:"cost,omitempty"`
	Discount  *float64 `json:"discount,omitempty"`
	AmountDue *float64 `json:"amountDue,omitempty"`
}

func newStayResponse(s model.Stay) stayResponse {
	resp := stayResponse{
		Receipt:   s.Receipt,
		Plate:     s.Vehicle.Plate,
		Brand:     s.Vehicle.Brand,
		Model:     s.Vehicle.Model,
		Color:     s.Vehicle.Color,
		ClientCPF: s.CPF,
		SlotCode:  s.SlotCode,
		State:     string(s.State()),
		EntryAt:   s.EntryAt.Format(time.RFC3339),
	}
	if s.ExitAt != nil {
		resp.ExitAt = s.ExitAt.Format(time.RFC3339)
	}
	if s.Cost != nil {
		cost := s.Cost.Float()
		resp.Cost = &cost
		total := s.Total().Float()
		resp.AmountDue = &total
	}
	if s.Discount != nil {
		discount := s.Discount.Float()
		resp.Discount = &discount
	}
	return resp
}

// ListStays возвращает историю стоянок клиента.
func (h *Handler) ListStays(w http.ResponseWriter, r *http.Request) {
	stays, err := h.service.ListStays(r.Context(), chi.URLParam(r, "cpf"))
	if err != nil {
		h.writeServiceError(w, "list stays", err)
		return
	}

	resp := make([]stayResponse, 0, len(stays))
	for _, st := range stays {
		resp = append(resp, newStayResponse(st))
	}
	writeJSON(w, http.StatusOK, resp)
}

type checkInRequest struct {
	Plate     string `json:"plate" validate:"plate"`
	Brand     string `json:"brand" validate:"required,max=64"`
	Model     string `json:"model" validate:"required,max=64"`
	Color     string `json:"color" validate:"required,max=32"`
	ClientCPF string `json:"clientCpf" validate:"cpf"`
}

// CheckIn оформляет въезд автомобиля.
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req checkInRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	req.Brand = strings.TrimSpace(req.Brand)
	req.Model = strings.TrimSpace(req.Model)
	req.Color = strings.TrimSpace(req.Color)
	if code, msg, ok := h.validateRequest(req); !ok {
		writeError(w, http.StatusUnprocessableEntity, code, msg)
		return
	}

	vehicle := model.Vehicle{
		Plate: req.Plate,
		Brand: req.Brand,
		Model: req.Model,
		Color: req.Color,
	}

	stay, err := h.service.CheckIn(r.Context(), req.ClientCPF, vehicle)
	if err != nil {
		h.writeServiceError(w, "check-in", err)
		return
	}

	w.Header().Set("Location", "/api/v1/parkings/checkin/"+url.PathEscape(stay.Receipt))
	writeJSON(w, http.StatusCreated, newStayResponse(stay))
}

// GetCheckIn возвращает открытую стоянку по номеру чека.
func (h *Handler) GetCheckIn(w http.ResponseWriter, r *http.Request) {
	stay, err := h.service.GetOpenStay(r.Context(), chi.URLParam(r, "receipt"))
	if err != nil {
		h.writeServiceError(w, "get check-in", err)
		return
	}
	writeJSON(w, http.StatusOK, newStayResponse(stay))
}

// CheckOut оформляет выезд по номеру чека.
func (h *Handler) CheckOut(w http.ResponseWriter, r *http.Request) {
	stay, err := h.service.CheckOut(r.Context(), chi.URLParam(r, "receipt"))
	if err != nil {
		h.writeServiceError(w, "check-out", err)
		return
	}
	writeJSON(w, http.StatusOK, newStayResponse(stay))
}

// Health сообщает, что процесс принимает запросы.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
