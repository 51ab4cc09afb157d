// Package repository содержит реализации хранилища сервиса парковки:
// PostgreSQL и хранилище в памяти с тем же контрактом.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/parking-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	constraintSlotCode = "slots_code_key"
	constraintCPF      = "clients_cpf_key"
	constraintReceipt  = "stays_receipt_key"
	constraintOpenSlot = "stays_open_slot_idx"
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

type txKey struct{}

// WithTx выполняет fn в одной транзакции. Транзакция передаётся через контекст,
// поэтому все вызовы репозитория внутри fn идут в неё. Вложенный вызов
// переиспользует внешнюю транзакцию.
func (r *PostgresRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func txFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}

func (r *PostgresRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *PostgresRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}

func (r *PostgresRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}

// withRetry повторяет одиночные операции вне транзакции при временных ошибках.
// Внутри транзакции повтор невозможен: ошибка уже прервала её.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	if txFromContext(ctx) != nil {
		return fn()
	}

	var err error
	delays := []time.Duration{100 * time.Millisecond, 300 * time.Millisecond, 1 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !isRetryable(err) || i == len(delays) {
			break
		}

		timer := time.NewTimer(delays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

// CreateSlot сохраняет новое парковочное место.
func (r *PostgresRepository) CreateSlot(ctx context.Context, slot model.Slot) error {
	return r.withRetry(ctx, func() error {
		_, err := r.exec(ctx,
			`INSERT INTO slots (id, code, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $4)`,
			slot.ID, slot.Code, string(slot.Status), slot.CreatedAt,
		)
		if err != nil {
			if constraint, ok := uniqueViolation(err); ok && constraint == constraintSlotCode {
				return fmt.Errorf("%w: %s", model.ErrDuplicateSlotCode, slot.Code)
			}
			return fmt.Errorf("insert slot: %w", err)
		}
		return nil
	})
}

// FindSlotByCode возвращает место по коду.
func (r *PostgresRepository) FindSlotByCode(ctx context.Context, code string) (model.Slot, error) {
	var s model.Slot
	err := r.withRetry(ctx, func() error {
		var status string
		err := r.queryRow(ctx,
			`SELECT id, code, status, created_at FROM slots WHERE code = $1`,
			code,
		).Scan(&s.ID, &s.Code, &status, &s.CreatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: %s", model.ErrSlotNotFound, code)
			}
			return fmt.Errorf("select slot: %w", err)
		}
		s.Status = model.SlotStatus(status)
		return nil
	})
	if err != nil {
		return model.Slot{}, err
	}
	return s, nil
}

// ClaimFreeSlot атомарно переводит первое свободное место в OCCUPIED и возвращает его.
// Строки, заблокированные параллельными транзакциями, пропускаются, поэтому два
// конкурентных въезда никогда не получат одно место.
func (r *PostgresRepository) ClaimFreeSlot(ctx context.Context) (model.Slot, error) {
	var (
		s      model.Slot
		status string
	)
	err := r.queryRow(ctx,
		`UPDATE slots
		 SET status = $1, updated_at = NOW()
		 WHERE id = (
		     SELECT id FROM slots
		     WHERE status = $2
		     ORDER BY code
		     LIMIT 1
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, code, status, created_at`,
		string(model.SlotStatusOccupied), string(model.SlotStatusFree),
	).Scan(&s.ID, &s.Code, &status, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Slot{}, model.ErrNoFreeSlot
		}
		return model.Slot{}, fmt.Errorf("claim free slot: %w", err)
	}
	s.Status = model.SlotStatus(status)
	return s, nil
}

// ReleaseSlot переводит занятое место обратно в FREE.
func (r *PostgresRepository) ReleaseSlot(ctx context.Context, slotID string) error {
	cmdTag, err := r.exec(ctx,
		`UPDATE slots SET status = $2, updated_at = NOW() WHERE id = $1 AND status = $3`,
		slotID, string(model.SlotStatusFree), string(model.SlotStatusOccupied),
	)
	if err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	if cmdTag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.queryRow(ctx, `SELECT EXISTS (SELECT 1 FROM slots WHERE id = $1)`, slotID).Scan(&exists); err != nil {
		return fmt.Errorf("check slot: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", model.ErrSlotNotFound, slotID)
	}
	return fmt.Errorf("%w: %s", model.ErrSlotNotOccupied, slotID)
}

// CreateClient сохраняет нового клиента.
func (r *PostgresRepository) CreateClient(ctx context.Context, client model.Client) error {
	return r.withRetry(ctx, func() error {
		var userID *string
		if client.UserID != "" {
			userID = &client.UserID
		}
		_, err := r.exec(ctx,
			`INSERT INTO clients (id, name, cpf, user_id) VALUES ($1, $2, $3, $4)`,
			client.ID, client.Name, client.CPF, userID,
		)
		if err != nil {
			if constraint, ok := uniqueViolation(err); ok && constraint == constraintCPF {
				return fmt.Errorf("%w: %s", model.ErrDuplicateClient, client.CPF)
			}
			return fmt.Errorf("insert client: %w", err)
		}
		return nil
	})
}

// FindClientByCPF возвращает клиента по CPF.
func (r *PostgresRepository) FindClientByCPF(ctx context.Context, cpf string) (model.Client, error) {
	var c model.Client
	err := r.withRetry(ctx, func() error {
		var userID *string
		err := r.queryRow(ctx,
			`SELECT id, name, cpf, user_id FROM clients WHERE cpf = $1`,
			cpf,
		).Scan(&c.ID, &c.Name, &c.CPF, &userID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: %s", model.ErrClientNotFound, cpf)
			}
			return fmt.Errorf("select client: %w", err)
		}
		if userID != nil {
			c.UserID = *userID
		}
		return nil
	})
	if err != nil {
		return model.Client{}, err
	}
	return c, nil
}

// CountCompletedStays возвращает число закрытых стоянок клиента.
func (r *PostgresRepository) CountCompletedStays(ctx context.Context, cpf string) (int64, error) {
	var count int64
	err := r.withRetry(ctx, func() error {
		err := r.queryRow(ctx,
			`SELECT COUNT(*)
			 FROM stays s
			 JOIN clients c ON c.id = s.client_id
			 WHERE c.cpf = $1 AND s.exit_at IS NOT NULL`,
			cpf,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("count completed stays: %w", err)
		}
		return nil
	})
	return count, err
}

// CreateStay сохраняет открытую стоянку.
func (r *PostgresRepository) CreateStay(ctx context.Context, stay model.Stay) error {
	_, err := r.exec(ctx,
		`INSERT INTO stays (id, receipt, client_id, slot_id, plate, brand, model, color, entry_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		stay.ID, stay.Receipt, stay.ClientID, stay.SlotID,
		stay.Vehicle.Plate, stay.Vehicle.Brand, stay.Vehicle.Model, stay.Vehicle.Color,
		stay.EntryAt,
	)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			switch constraint {
			case constraintReceipt:
				return fmt.Errorf("%w: %s", model.ErrDuplicateReceipt, stay.Receipt)
			case constraintOpenSlot:
				return fmt.Errorf("slot %s already has an open stay: %w", stay.SlotCode, model.ErrInvariant)
			}
		}
		return fmt.Errorf("insert stay: %w", err)
	}
	return nil
}

const staySelect = `SELECT s.id, s.receipt, s.client_id, c.cpf, s.slot_id, sl.code,
       s.plate, s.brand, s.model, s.color, s.entry_at, s.exit_at, s.cost, s.discount
FROM stays s
JOIN clients c ON c.id = s.client_id
JOIN slots sl ON sl.id = s.slot_id`

func scanStay(row pgx.Row) (model.Stay, error) {
	var (
		st       model.Stay
		exitAt   *time.Time
		cost     *int64
		discount *int64
	)
	err := row.Scan(
		&st.ID, &st.Receipt, &st.ClientID, &st.CPF, &st.SlotID, &st.SlotCode,
		&st.Vehicle.Plate, &st.Vehicle.Brand, &st.Vehicle.Model, &st.Vehicle.Color,
		&st.EntryAt, &exitAt, &cost, &discount,
	)
	if err != nil {
		return model.Stay{}, err
	}

	st.EntryAt = st.EntryAt.UTC()
	if exitAt != nil {
		t := exitAt.UTC()
		st.ExitAt = &t
	}
	if cost != nil {
		v := model.Money(*cost)
		st.Cost = &v
	}
	if discount != nil {
		v := model.Money(*discount)
		st.Discount = &v
	}
	return st, nil
}

// FindOpenStay возвращает открытую стоянку по номеру чека. Внутри транзакции
// строка блокируется до её завершения.
func (r *PostgresRepository) FindOpenStay(ctx context.Context, receipt string) (model.Stay, error) {
	sql := staySelect + ` WHERE s.receipt = $1 AND s.exit_at IS NULL`
	if txFromContext(ctx) != nil {
		sql += ` FOR UPDATE OF s`
	}

	st, err := scanStay(r.queryRow(ctx, sql, receipt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Stay{}, fmt.Errorf("%w: %s", model.ErrOpenStayNotFound, receipt)
		}
		return model.Stay{}, fmt.Errorf("select open stay: %w", err)
	}
	return st, nil
}

// FinalizeStay закрывает стоянку. Если она уже закрыта, возвращается ErrOpenStayNotFound.
func (r *PostgresRepository) FinalizeStay(ctx context.Context, stay model.Stay) error {
	if stay.ExitAt == nil || stay.Cost == nil || stay.Discount == nil {
		return fmt.Errorf("finalize stay %s without exit data: %w", stay.Receipt, model.ErrInvariant)
	}

	cmdTag, err := r.exec(ctx,
		`UPDATE stays SET exit_at = $2, cost = $3, discount = $4 WHERE receipt = $1 AND exit_at IS NULL`,
		stay.Receipt, *stay.ExitAt, int64(*stay.Cost), int64(*stay.Discount),
	)
	if err != nil {
		return fmt.Errorf("finalize stay: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", model.ErrOpenStayNotFound, stay.Receipt)
	}
	return nil
}

// ListStaysByCPF возвращает все стоянки клиента в порядке въезда.
func (r *PostgresRepository) ListStaysByCPF(ctx context.Context, cpf string) ([]model.Stay, error) {
	rows, err := r.query(ctx, staySelect+` WHERE c.cpf = $1 ORDER BY s.entry_at, s.receipt`, cpf)
	if err != nil {
		return nil, fmt.Errorf("select stays: %w", err)
	}
	defer rows.Close()

	var res []model.Stay
	for rows.Next() {
		st, err := scanStay(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stay: %w", err)
		}
		res = append(res, st)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
