package clock

import (
	"fmt"
	"sync/atomic"
	"time"
)

const receiptSequenceModulo = 10000

// ReceiptGenerator выдаёт номера чеков, производные от момента въезда.
type ReceiptGenerator interface {
	Next(entry time.Time) string
}

// Receipts формирует номер чека из даты, времени с микросекундами и счётчика процесса.
// Счётчик различает въезды, попавшие в одну микросекунду.
type Receipts struct {
	seq atomic.Uint64
}

// NewReceipts создаёт генератор номеров чеков.
func NewReceipts() *Receipts {
	return &Receipts{}
}

// Next возвращает номер вида 20250101-120000-000042-0007.
func (r *Receipts) Next(entry time.Time) string {
	n := r.seq.Add(1) % receiptSequenceModulo
	entry = entry.UTC()
	return fmt.Sprintf("%s-%06d-%04d",
		entry.Format("20060102-150405"),
		entry.Nanosecond()/int(time.Microsecond),
		n,
	)
}
