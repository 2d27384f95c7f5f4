package record

import (
	"database/sql"
	"fmt"

	_ "github.com/glebarez/go-sqlite"

	"masmarket-go/internal/market"
)

// Store persists fills in SQLite for post-run queries.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) a SQLite fill store.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", pragma, err)
		}
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS fills (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			order_id INTEGER NOT NULL,
			buyer_id INTEGER NOT NULL,
			seller_id INTEGER NOT NULL,
			quantity INTEGER NOT NULL,
			price REAL NOT NULL,
			macro_tick INTEGER NOT NULL,
			micro_tick INTEGER NOT NULL
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create fills table: %w", err)
	}
	return &Store{db: db}, nil
}

// Record inserts one fill. Write errors are swallowed; the recorder sits on
// the hot path and persistence is best effort.
func (s *Store) Record(fill market.Fill) {
	_, _ = s.db.Exec(
		`INSERT INTO fills (order_id, buyer_id, seller_id, quantity, price, macro_tick, micro_tick)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		fill.OrderID, fill.BuyerID, fill.SellerID, fill.Quantity, fill.Price, fill.MacroTick, fill.MicroTick,
	)
}

// Fills loads every recorded fill in insertion order.
func (s *Store) Fills() ([]market.Fill, error) {
	rows, err := s.db.Query(
		`SELECT order_id, buyer_id, seller_id, quantity, price, macro_tick, micro_tick FROM fills ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query fills: %w", err)
	}
	defer rows.Close()

	var fills []market.Fill
	for rows.Next() {
		var f market.Fill
		if err := rows.Scan(&f.OrderID, &f.BuyerID, &f.SellerID, &f.Quantity, &f.Price, &f.MacroTick, &f.MicroTick); err != nil {
			return nil, fmt.Errorf("scan fill: %w", err)
		}
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
