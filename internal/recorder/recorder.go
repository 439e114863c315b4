package recorder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"turtle-trader/internal/interfaces"
	"turtle-trader/internal/logger"
	"turtle-trader/internal/types"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// SQLRecorder writes every cycle, with its signals, orders, drops and
// reconciled outcomes, to a SQL database.
type SQLRecorder struct {
	db *sqlx.DB
	mu sync.Mutex
}

var _ interfaces.Recorder = (*SQLRecorder)(nil)

// Open returns a Noop recorder when driver is empty.
func Open(ctx context.Context, driver, dsn string) (interfaces.Recorder, error) {
	if driver == "" {
		logger.Info(ctx, "Cycle recorder disabled")
		return Noop{}, nil
	}
	return NewSQLRecorder(ctx, driver, dsn)
}

// NewSQLRecorder opens (or creates) the database and runs migrations.
func NewSQLRecorder(ctx context.Context, driver, dsn string) (*SQLRecorder, error) {
	if driver == DriverSQLite {
		if dir := filepath.Dir(dsn); dir != "." && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		// one writer
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
	}

	r := &SQLRecorder{db: db}
	if err := r.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info(ctx, "Cycle recorder opened", "driver", driver)
	return r, nil
}

func (r *SQLRecorder) migrate(ctx context.Context) error {
	id := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if r.db.DriverName() == DriverPostgres {
		id = "BIGSERIAL PRIMARY KEY"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cycles (
			id           ` + id + `,
			cycle_id     TEXT NOT NULL UNIQUE,
			as_of        BIGINT NOT NULL,
			day          TEXT NOT NULL,
			markets      TEXT,
			risk_capital DOUBLE PRECISION,
			stops_reset  BOOLEAN,
			skipped      TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cycles_day ON cycles(day)`,

		`CREATE TABLE IF NOT EXISTS signals (
			id         ` + id + `,
			cycle_id   TEXT NOT NULL,
			symbol     TEXT NOT NULL,
			direction  TEXT,
			price      DOUBLE PRECISION,
			atr        DOUBLE PRECISION,
			dollar_vol DOUBLE PRECISION,
			size       INTEGER,
			decision   TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_cycle ON signals(cycle_id)`,

		`CREATE TABLE IF NOT EXISTS orders (
			id       ` + id + `,
			cycle_id TEXT NOT NULL,
			order_id TEXT NOT NULL,
			symbol   TEXT NOT NULL,
			contract TEXT,
			kind     TEXT,
			qty      INTEGER,
			price    DOUBLE PRECISION,
			tag      TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_cycle ON orders(cycle_id)`,

		`CREATE TABLE IF NOT EXISTS drops (
			id       ` + id + `,
			cycle_id TEXT NOT NULL,
			symbol   TEXT NOT NULL,
			reason   TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS outcomes (
			id        ` + id + `,
			cycle_id  TEXT NOT NULL,
			order_id  TEXT NOT NULL,
			symbol    TEXT,
			direction TEXT,
			status    TEXT
		)`,
	}

	for _, s := range stmts {
		if _, err := r.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(s), err)
		}
	}
	return nil
}

type cycleRow struct {
	CycleID     string  `db:"cycle_id"`
	AsOf        int64   `db:"as_of"`
	Day         string  `db:"day"`
	Markets     string  `db:"markets"`
	RiskCapital float64 `db:"risk_capital"`
	StopsReset  bool    `db:"stops_reset"`
	Skipped     string  `db:"skipped"`
}

type signalRow struct {
	CycleID   string  `db:"cycle_id"`
	Symbol    string  `db:"symbol"`
	Direction string  `db:"direction"`
	Price     float64 `db:"price"`
	ATR       float64 `db:"atr"`
	DollarVol float64 `db:"dollar_vol"`
	Size      int     `db:"size"`
	Decision  string  `db:"decision"`
}

type orderRow struct {
	CycleID  string  `db:"cycle_id"`
	OrderID  string  `db:"order_id"`
	Symbol   string  `db:"symbol"`
	Contract string  `db:"contract"`
	Kind     string  `db:"kind"`
	Qty      int     `db:"qty"`
	Price    float64 `db:"price"`
	Tag      string  `db:"tag"`
}

type dropRow struct {
	CycleID string `db:"cycle_id"`
	Symbol  string `db:"symbol"`
	Reason  string `db:"reason"`
}

type outcomeRow struct {
	CycleID   string `db:"cycle_id"`
	OrderID   string `db:"order_id"`
	Symbol    string `db:"symbol"`
	Direction string `db:"direction"`
	Status    string `db:"status"`
}

const (
	insertCycle = `INSERT INTO cycles (cycle_id, as_of, day, markets, risk_capital, stops_reset, skipped)
		VALUES (:cycle_id, :as_of, :day, :markets, :risk_capital, :stops_reset, :skipped)`
	insertSignal = `INSERT INTO signals (cycle_id, symbol, direction, price, atr, dollar_vol, size, decision)
		VALUES (:cycle_id, :symbol, :direction, :price, :atr, :dollar_vol, :size, :decision)`
	insertOrder = `INSERT INTO orders (cycle_id, order_id, symbol, contract, kind, qty, price, tag)
		VALUES (:cycle_id, :order_id, :symbol, :contract, :kind, :qty, :price, :tag)`
	insertDrop    = `INSERT INTO drops (cycle_id, symbol, reason) VALUES (:cycle_id, :symbol, :reason)`
	insertOutcome = `INSERT INTO outcomes (cycle_id, order_id, symbol, direction, status)
		VALUES (:cycle_id, :order_id, :symbol, :direction, :status)`
)

// RecordCycle writes one cycle in a single transaction.
func (r *SQLRecorder) RecordCycle(ctx context.Context, res *types.CycleResult) error {
	if res == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	id := res.ID
	if _, err := tx.NamedExecContext(ctx, insertCycle, cycleRow{
		CycleID:     id,
		AsOf:        res.AsOf.Unix(),
		Day:         res.Day,
		Markets:     strings.Join(res.Markets, ","),
		RiskCapital: res.RiskCapital,
		StopsReset:  res.StopsReset,
		Skipped:     res.Skipped,
	}); err != nil {
		return fmt.Errorf("insert cycle: %w", err)
	}

	for _, s := range res.Signals {
		if _, err := tx.NamedExecContext(ctx, insertSignal, signalRow{
			CycleID:   id,
			Symbol:    s.Symbol,
			Direction: s.Signal.String(),
			Price:     s.Price,
			ATR:       s.ATR,
			DollarVol: s.DollarVol,
			Size:      s.Size,
			Decision:  s.Decision,
		}); err != nil {
			return fmt.Errorf("insert signal %s: %w", s.Symbol, err)
		}
	}
	for _, o := range res.Orders {
		if _, err := tx.NamedExecContext(ctx, insertOrder, orderRow{
			CycleID:  id,
			OrderID:  o.OrderID,
			Symbol:   o.Symbol,
			Contract: o.Contract,
			Kind:     o.Kind,
			Qty:      o.Qty,
			Price:    o.Price,
			Tag:      o.Tag,
		}); err != nil {
			return fmt.Errorf("insert order %s: %w", o.OrderID, err)
		}
	}
	for _, d := range res.Dropped {
		if _, err := tx.NamedExecContext(ctx, insertDrop, dropRow{CycleID: id, Symbol: d.Symbol, Reason: d.Reason}); err != nil {
			return fmt.Errorf("insert drop %s: %w", d.Symbol, err)
		}
	}
	for _, o := range res.Outcomes {
		if _, err := tx.NamedExecContext(ctx, insertOutcome, outcomeRow{
			CycleID:   id,
			OrderID:   o.OrderID,
			Symbol:    o.Symbol,
			Direction: o.Direction.String(),
			Status:    o.Status.String(),
		}); err != nil {
			return fmt.Errorf("insert outcome %s: %w", o.OrderID, err)
		}
	}

	return tx.Commit()
}

// CycleSummary is one row of the cycle history.
type CycleSummary struct {
	CycleID     string  `db:"cycle_id"`
	Day         string  `db:"day"`
	RiskCapital float64 `db:"risk_capital"`
	Skipped     string  `db:"skipped"`
	Signals     int     `db:"signals"`
	Orders      int     `db:"orders"`
	Drops       int     `db:"drops"`
}

// RecentCycles returns the latest cycles, newest first.
func (r *SQLRecorder) RecentCycles(ctx context.Context, limit int) ([]CycleSummary, error) {
	q := r.db.Rebind(`SELECT c.cycle_id, c.day, c.risk_capital, c.skipped,
		(SELECT COUNT(*) FROM signals s WHERE s.cycle_id = c.cycle_id) AS signals,
		(SELECT COUNT(*) FROM orders o WHERE o.cycle_id = c.cycle_id) AS orders,
		(SELECT COUNT(*) FROM drops d WHERE d.cycle_id = c.cycle_id) AS drops
		FROM cycles c ORDER BY c.as_of DESC, c.id DESC LIMIT ?`)

	var out []CycleSummary
	if err := r.db.SelectContext(ctx, &out, q, limit); err != nil {
		return nil, fmt.Errorf("select cycles: %w", err)
	}
	return out, nil
}

// DropReasons counts drops per reason on one trading day.
func (r *SQLRecorder) DropReasons(ctx context.Context, day string) (map[string]int, error) {
	q := r.db.Rebind(`SELECT d.reason, COUNT(*) AS n FROM drops d
		JOIN cycles c ON c.cycle_id = d.cycle_id
		WHERE c.day = ? GROUP BY d.reason`)

	var rows []struct {
		Reason string `db:"reason"`
		N      int    `db:"n"`
	}
	if err := r.db.SelectContext(ctx, &rows, q, day); err != nil {
		return nil, fmt.Errorf("select drops: %w", err)
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.Reason] = row.N
	}
	return out, nil
}

// LastSession returns the newest recorded cycle and the drop reasons of its
// trading day. ok is false on an empty history.
func (r *SQLRecorder) LastSession(ctx context.Context) (last CycleSummary, drops map[string]int, ok bool, err error) {
	cycles, err := r.RecentCycles(ctx, 1)
	if err != nil || len(cycles) == 0 {
		return CycleSummary{}, nil, false, err
	}
	drops, err = r.DropReasons(ctx, cycles[0].Day)
	if err != nil {
		return CycleSummary{}, nil, false, err
	}
	return cycles[0], drops, true, nil
}

func (r *SQLRecorder) Close() error {
	return r.db.Close()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i > 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

// Noop discards cycle history.
type Noop struct{}

func (Noop) RecordCycle(context.Context, *types.CycleResult) error { return nil }
func (Noop) Close() error                                          { return nil }
