package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coopgrid/energy-ledger/internal/domain"
	_ "github.com/mattn/go-sqlite3"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS trading_orders (
			order_number TEXT PRIMARY KEY,
			trader TEXT NOT NULL,
			pool TEXT,
			counterparty TEXT,
			side TEXT NOT NULL,
			order_type TEXT NOT NULL,
			quantity REAL NOT NULL,
			filled_quantity REAL NOT NULL,
			remaining_quantity REAL NOT NULL,
			price_per_unit REAL NOT NULL,
			total_value REAL NOT NULL,
			filled_value REAL NOT NULL,
			remaining_value REAL NOT NULL,
			currency TEXT NOT NULL DEFAULT 'EUR',
			valid_from DATETIME,
			valid_until DATETIME,
			execution_time DATETIME,
			expiry_time DATETIME,
			status TEXT NOT NULL,
			approved_by TEXT,
			executed_by TEXT,
			tags TEXT,
			metadata TEXT,
			order_conditions TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status ON trading_orders(status);`,
		`CREATE TABLE IF NOT EXISTS energy_transfers (
			transfer_number TEXT PRIMARY KEY,
			source_kind TEXT NOT NULL,
			source_id TEXT NOT NULL,
			source_meter TEXT,
			destination_kind TEXT NOT NULL,
			destination_id TEXT NOT NULL,
			destination_meter TEXT,
			amount_kwh REAL NOT NULL,
			amount_mwh REAL NOT NULL,
			transfer_rate_kw REAL,
			efficiency_pct REAL NOT NULL,
			loss_pct REAL NOT NULL,
			loss_amount_kwh REAL NOT NULL,
			net_amount_kwh REAL NOT NULL,
			scheduled_start DATETIME NOT NULL,
			scheduled_end DATETIME NOT NULL,
			actual_start DATETIME,
			actual_end DATETIME,
			duration_hours REAL NOT NULL,
			cost_per_unit REAL NOT NULL,
			total_cost REAL NOT NULL,
			currency TEXT NOT NULL DEFAULT 'EUR',
			status TEXT NOT NULL,
			status_reason TEXT,
			annotations TEXT,
			tags TEXT,
			metadata TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transfers_status ON energy_transfers(status);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}

	return nil
}

// JSON side-channel columns (tags, metadata, conditions, annotations) are
// stored as opaque TEXT and never interpreted here.

func marshalJSON(v any) (sql.NullString, error) {
	switch x := v.(type) {
	case map[string]any:
		if len(x) == 0 {
			return sql.NullString{}, nil
		}
	case []string:
		if len(x) == 0 {
			return sql.NullString{}, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalJSON(src sql.NullString, dst any) error {
	if !src.Valid || src.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(src.String), dst)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// OrderRepository implementation

func (s *SQLiteStore) SaveOrder(ctx context.Context, o *domain.TradingOrder) error {
	tags, err := marshalJSON(o.Tags)
	if err != nil {
		return err
	}
	meta, err := marshalJSON(o.Metadata)
	if err != nil {
		return err
	}
	conds, err := marshalJSON(o.Conditions)
	if err != nil {
		return err
	}

	query := `INSERT INTO trading_orders (
			order_number, trader, pool, counterparty, side, order_type,
			quantity, filled_quantity, remaining_quantity,
			price_per_unit, total_value, filled_value, remaining_value, currency,
			valid_from, valid_until, execution_time, expiry_time,
			status, approved_by, executed_by, tags, metadata, order_conditions,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(order_number) DO UPDATE SET
			filled_quantity=excluded.filled_quantity,
			remaining_quantity=excluded.remaining_quantity,
			total_value=excluded.total_value,
			filled_value=excluded.filled_value,
			remaining_value=excluded.remaining_value,
			execution_time=excluded.execution_time,
			status=excluded.status,
			approved_by=excluded.approved_by,
			executed_by=excluded.executed_by,
			tags=excluded.tags,
			metadata=excluded.metadata,
			order_conditions=excluded.order_conditions,
			updated_at=excluded.updated_at`
	_, err = s.db.ExecContext(ctx, query,
		o.Number, o.Trader, o.Pool, o.Counterparty, o.Side, o.Type,
		o.Quantity, o.FilledQuantity, o.RemainingQuantity,
		o.PricePerUnit, o.TotalValue, o.FilledValue, o.RemainingValue, o.Currency,
		nullTime(o.ValidFrom), nullTime(o.ValidUntil), nullTime(o.ExecutionTime), nullTime(o.ExpiryTime),
		o.Status, o.ApprovedBy, o.ExecutedBy, tags, meta, conds,
		o.CreatedAt, o.UpdatedAt)
	return err
}

const orderColumns = `order_number, trader, pool, counterparty, side, order_type,
	quantity, filled_quantity, remaining_quantity,
	price_per_unit, total_value, filled_value, remaining_value, currency,
	valid_from, valid_until, execution_time, expiry_time,
	status, approved_by, executed_by, tags, metadata, order_conditions,
	created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (*domain.TradingOrder, error) {
	var o domain.TradingOrder
	var validFrom, validUntil, execTime, expiryTime sql.NullTime
	var tags, meta, conds sql.NullString

	err := row.Scan(&o.Number, &o.Trader, &o.Pool, &o.Counterparty, &o.Side, &o.Type,
		&o.Quantity, &o.FilledQuantity, &o.RemainingQuantity,
		&o.PricePerUnit, &o.TotalValue, &o.FilledValue, &o.RemainingValue, &o.Currency,
		&validFrom, &validUntil, &execTime, &expiryTime,
		&o.Status, &o.ApprovedBy, &o.ExecutedBy, &tags, &meta, &conds,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}

	o.ValidFrom = timePtr(validFrom)
	o.ValidUntil = timePtr(validUntil)
	o.ExecutionTime = timePtr(execTime)
	o.ExpiryTime = timePtr(expiryTime)
	if err := unmarshalJSON(tags, &o.Tags); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(meta, &o.Metadata); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(conds, &o.Conditions); err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *SQLiteStore) GetOrder(ctx context.Context, number string) (*domain.TradingOrder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM trading_orders WHERE order_number = ?`, number)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, number)
	}
	return o, err
}

func (s *SQLiteStore) ListOrders(ctx context.Context, limit int) ([]*domain.TradingOrder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM trading_orders ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*domain.TradingOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// TransferRepository implementation

func (s *SQLiteStore) SaveTransfer(ctx context.Context, t *domain.EnergyTransfer) error {
	tags, err := marshalJSON(t.Tags)
	if err != nil {
		return err
	}
	meta, err := marshalJSON(t.Metadata)
	if err != nil {
		return err
	}
	annotations, err := marshalJSON(t.Annotations)
	if err != nil {
		return err
	}

	query := `INSERT INTO energy_transfers (
			transfer_number, source_kind, source_id, source_meter,
			destination_kind, destination_id, destination_meter,
			amount_kwh, amount_mwh, transfer_rate_kw,
			efficiency_pct, loss_pct, loss_amount_kwh, net_amount_kwh,
			scheduled_start, scheduled_end, actual_start, actual_end, duration_hours,
			cost_per_unit, total_cost, currency,
			status, status_reason, annotations, tags, metadata,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(transfer_number) DO UPDATE SET
			amount_mwh=excluded.amount_mwh,
			loss_pct=excluded.loss_pct,
			loss_amount_kwh=excluded.loss_amount_kwh,
			net_amount_kwh=excluded.net_amount_kwh,
			actual_start=excluded.actual_start,
			actual_end=excluded.actual_end,
			duration_hours=excluded.duration_hours,
			total_cost=excluded.total_cost,
			status=excluded.status,
			status_reason=excluded.status_reason,
			annotations=excluded.annotations,
			tags=excluded.tags,
			metadata=excluded.metadata,
			updated_at=excluded.updated_at`
	_, err = s.db.ExecContext(ctx, query,
		t.Number, t.Source.Kind, t.Source.ID, t.Source.Meter,
		t.Destination.Kind, t.Destination.ID, t.Destination.Meter,
		t.AmountKWh, t.AmountMWh, t.TransferRateKW,
		t.EfficiencyPct, t.LossPct, t.LossAmountKWh, t.NetAmountKWh,
		t.ScheduledStart, t.ScheduledEnd, nullTime(t.ActualStart), nullTime(t.ActualEnd), t.DurationHours,
		t.CostPerUnit, t.TotalCost, t.Currency,
		t.Status, t.StatusReason, annotations, tags, meta,
		t.CreatedAt, t.UpdatedAt)
	return err
}

const transferColumns = `transfer_number, source_kind, source_id, source_meter,
	destination_kind, destination_id, destination_meter,
	amount_kwh, amount_mwh, transfer_rate_kw,
	efficiency_pct, loss_pct, loss_amount_kwh, net_amount_kwh,
	scheduled_start, scheduled_end, actual_start, actual_end, duration_hours,
	cost_per_unit, total_cost, currency,
	status, status_reason, annotations, tags, metadata,
	created_at, updated_at`

func scanTransfer(row interface{ Scan(...any) error }) (*domain.EnergyTransfer, error) {
	var t domain.EnergyTransfer
	var actualStart, actualEnd sql.NullTime
	var annotations, tags, meta sql.NullString

	err := row.Scan(&t.Number, &t.Source.Kind, &t.Source.ID, &t.Source.Meter,
		&t.Destination.Kind, &t.Destination.ID, &t.Destination.Meter,
		&t.AmountKWh, &t.AmountMWh, &t.TransferRateKW,
		&t.EfficiencyPct, &t.LossPct, &t.LossAmountKWh, &t.NetAmountKWh,
		&t.ScheduledStart, &t.ScheduledEnd, &actualStart, &actualEnd, &t.DurationHours,
		&t.CostPerUnit, &t.TotalCost, &t.Currency,
		&t.Status, &t.StatusReason, &annotations, &tags, &meta,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}

	t.ActualStart = timePtr(actualStart)
	t.ActualEnd = timePtr(actualEnd)
	if err := unmarshalJSON(annotations, &t.Annotations); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(tags, &t.Tags); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(meta, &t.Metadata); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *SQLiteStore) GetTransfer(ctx context.Context, number string) (*domain.EnergyTransfer, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+transferColumns+` FROM energy_transfers WHERE transfer_number = ?`, number)
	t, err := scanTransfer(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: transfer %s", domain.ErrNotFound, number)
	}
	return t, err
}

func (s *SQLiteStore) ListTransfers(ctx context.Context, limit int) ([]*domain.EnergyTransfer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+transferColumns+` FROM energy_transfers ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transfers []*domain.EnergyTransfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
