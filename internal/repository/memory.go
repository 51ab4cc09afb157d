package repository

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/mmeshcher/parking-system/internal/model"
)

// MemoryRepository хранит данные в памяти процесса. Используется без DATABASE_URI
// и в тестах. Транзакции сериализуются одним мьютексом; при ошибке состояние
// откатывается к снимку, сделанному в начале транзакции.
type MemoryRepository struct {
	mu sync.Mutex

	slots     map[string]model.Slot
	slotCodes map[string]string
	clients   map[string]model.Client
	stays     []model.Stay
	receipts  map[string]int
}

type memoryTxKey struct{}

// NewMemoryRepository создаёт пустое хранилище в памяти.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		slots:     make(map[string]model.Slot),
		slotCodes: make(map[string]string),
		clients:   make(map[string]model.Client),
		receipts:  make(map[string]int),
	}
}

// Close ничего не делает.
func (r *MemoryRepository) Close() error {
	return nil
}

type memorySnapshot struct {
	slots     map[string]model.Slot
	slotCodes map[string]string
	clients   map[string]model.Client
	stays     []model.Stay
	receipts  map[string]int
}

func (r *MemoryRepository) snapshot() memorySnapshot {
	return memorySnapshot{
		slots:     maps.Clone(r.slots),
		slotCodes: maps.Clone(r.slotCodes),
		clients:   maps.Clone(r.clients),
		stays:     slices.Clone(r.stays),
		receipts:  maps.Clone(r.receipts),
	}
}

func (r *MemoryRepository) restore(s memorySnapshot) {
	r.slots = s.slots
	r.slotCodes = s.slotCodes
	r.clients = s.clients
	r.stays = s.stays
	r.receipts = s.receipts
}

func (r *MemoryRepository) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(memoryTxKey{}).(*MemoryRepository)
	return owner == r
}

// lock захватывает мьютекс, если вызов не находится внутри транзакции этого хранилища.
func (r *MemoryRepository) lock(ctx context.Context) func() {
	if r.inTx(ctx) {
		return func() {}
	}
	r.mu.Lock()
	return r.mu.Unlock
}

// WithTx выполняет fn атомарно относительно остальных операций хранилища.
func (r *MemoryRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.inTx(ctx) {
		return fn(ctx)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	snap := r.snapshot()
	if err := fn(context.WithValue(ctx, memoryTxKey{}, r)); err != nil {
		r.restore(snap)
		return err
	}
	return nil
}

// CreateSlot сохраняет новое парковочное место.
func (r *MemoryRepository) CreateSlot(ctx context.Context, slot model.Slot) error {
	defer r.lock(ctx)()

	if _, ok := r.slotCodes[slot.Code]; ok {
		return fmt.Errorf("%w: %s", model.ErrDuplicateSlotCode, slot.Code)
	}
	r.slots[slot.ID] = slot
	r.slotCodes[slot.Code] = slot.ID
	return nil
}

// FindSlotByCode возвращает место по коду.
func (r *MemoryRepository) FindSlotByCode(ctx context.Context, code string) (model.Slot, error) {
	defer r.lock(ctx)()

	id, ok := r.slotCodes[code]
	if !ok {
		return model.Slot{}, fmt.Errorf("%w: %s", model.ErrSlotNotFound, code)
	}
	return r.slots[id], nil
}

// ClaimFreeSlot переводит свободное место с наименьшим кодом в OCCUPIED.
func (r *MemoryRepository) ClaimFreeSlot(ctx context.Context) (model.Slot, error) {
	defer r.lock(ctx)()

	codes := make([]string, 0, len(r.slotCodes))
	for code, id := range r.slotCodes {
		if r.slots[id].Status == model.SlotStatusFree {
			codes = append(codes, code)
		}
	}
	if len(codes) == 0 {
		return model.Slot{}, model.ErrNoFreeSlot
	}
	sort.Strings(codes)

	slot := r.slots[r.slotCodes[codes[0]]]
	slot.Status = model.SlotStatusOccupied
	r.slots[slot.ID] = slot
	return slot, nil
}

// ReleaseSlot переводит занятое место обратно в FREE.
func (r *MemoryRepository) ReleaseSlot(ctx context.Context, slotID string) error {
	defer r.lock(ctx)()

	slot, ok := r.slots[slotID]
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrSlotNotFound, slotID)
	}
	if slot.Status != model.SlotStatusOccupied {
		return fmt.Errorf("%w: %s", model.ErrSlotNotOccupied, slot.Code)
	}
	slot.Status = model.SlotStatusFree
	r.slots[slotID] = slot
	return nil
}

// CreateClient сохраняет нового клиента.
func (r *MemoryRepository) CreateClient(ctx context.Context, client model.Client) error {
	defer r.lock(ctx)()

	if _, ok := r.clients[client.CPF]; ok {
		return fmt.Errorf("%w: %s", model.ErrDuplicateClient, client.CPF)
	}
	r.clients[client.CPF] = client
	return nil
}

// FindClientByCPF возвращает клиента по CPF.
func (r *MemoryRepository) FindClientByCPF(ctx context.Context, cpf string) (model.Client, error) {
	defer r.lock(ctx)()

	c, ok := r.clients[cpf]
	if !ok {
		return model.Client{}, fmt.Errorf("%w: %s", model.ErrClientNotFound, cpf)
	}
	return c, nil
}

// CountCompletedStays возвращает число закрытых стоянок клиента.
func (r *MemoryRepository) CountCompletedStays(ctx context.Context, cpf string) (int64, error) {
	defer r.lock(ctx)()

	var n int64
	for _, st := range r.stays {
		if st.CPF == cpf && st.ExitAt != nil {
			n++
		}
	}
	return n, nil
}

// CreateStay сохраняет открытую стоянку.
func (r *MemoryRepository) CreateStay(ctx context.Context, stay model.Stay) error {
	defer r.lock(ctx)()

	if _, ok := r.receipts[stay.Receipt]; ok {
		return fmt.Errorf("%w: %s", model.ErrDuplicateReceipt, stay.Receipt)
	}
	for _, st := range r.stays {
		if st.SlotID == stay.SlotID && st.ExitAt == nil {
			return fmt.Errorf("slot %s already has an open stay: %w", stay.SlotCode, model.ErrInvariant)
		}
	}

	r.receipts[stay.Receipt] = len(r.stays)
	r.stays = append(r.stays, stay)
	return nil
}

// FindOpenStay возвращает открытую стоянку по номеру чека.
func (r *MemoryRepository) FindOpenStay(ctx context.Context, receipt string) (model.Stay, error) {
	defer r.lock(ctx)()

	i, ok := r.receipts[receipt]
	if !ok || r.stays[i].ExitAt != nil {
		return model.Stay{}, fmt.Errorf("%w: %s", model.ErrOpenStayNotFound, receipt)
	}
	return r.stays[i], nil
}

// FinalizeStay закрывает стоянку. Если она уже закрыта, возвращается ErrOpenStayNotFound.
func (r *MemoryRepository) FinalizeStay(ctx context.Context, stay model.Stay) error {
	defer r.lock(ctx)()

	if stay.ExitAt == nil || stay.Cost == nil || stay.Discount == nil {
		return fmt.Errorf("finalize stay %s without exit data: %w", stay.Receipt, model.ErrInvariant)
	}

	i, ok := r.receipts[stay.Receipt]
	if !ok || r.stays[i].ExitAt != nil {
		return fmt.Errorf("%w: %s", model.ErrOpenStayNotFound, stay.Receipt)
	}

	closed := r.stays[i]
	exitAt, cost, discount := *stay.ExitAt, *stay.Cost, *stay.Discount
	closed.ExitAt, closed.Cost, closed.Discount = &exitAt, &cost, &discount
	r.stays[i] = closed
	return nil
}

// ListStaysByCPF возвращает все стоянки клиента в порядке въезда.
func (r *MemoryRepository) ListStaysByCPF(ctx context.Context, cpf string) ([]model.Stay, error) {
	defer r.lock(ctx)()

	var res []model.Stay
	for _, st := range r.stays {
		if st.CPF == cpf {
			res = append(res, st)
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].EntryAt.Before(res[j].EntryAt)
	})
	return res, nil
}
