package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/common"
	_ "github.com/mattn/go-sqlite3"
	"github.com/michaelpento.lv/tierarb/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS plans (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	block_number INTEGER NOT NULL,
	fingerprint  TEXT    NOT NULL,
	direction    TEXT    NOT NULL,
	amount_in    TEXT    NOT NULL,
	gross_profit TEXT    NOT NULL,
	net_profit   TEXT    NOT NULL,
	bribe        TEXT    NOT NULL,
	outcome      TEXT    NOT NULL,
	tx_hash      TEXT    NOT NULL DEFAULT '',
	detail       TEXT    NOT NULL DEFAULT '',
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS plans_block ON plans (block_number);
`

// Entry is one journaled execution plan and what became of it
type Entry struct {
	BlockNumber uint64
	Fingerprint uint64
	Direction   string
	AmountIn    *big.Int
	GrossProfit *big.Int
	NetProfit   *big.Int
	Bribe       *big.Int
	Outcome     string
	TxHash      common.Hash
	Detail      string
	CreatedAt   time.Time
}

// Fingerprint identifies a plan by its target and call data
func Fingerprint(plan *types.ExecutionPlan) uint64 {
	d := xxhash.New()
	_, _ = d.Write(plan.Target.Bytes())
	_, _ = d.Write(plan.Calldata)
	return d.Sum64()
}

// NewEntry builds the journal entry of plan
func NewEntry(plan *types.ExecutionPlan, outcome string) Entry {
	e := Entry{
		BlockNumber: plan.BlockNumber,
		Fingerprint: Fingerprint(plan),
		Direction:   "counter-first",
		AmountIn:    new(big.Int),
		GrossProfit: new(big.Int),
		NetProfit:   new(big.Int),
		Bribe:       new(big.Int),
		Outcome:     outcome,
		CreatedAt:   time.Now(),
	}
	if plan.Bribe != nil {
		e.Bribe.Set(plan.Bribe)
	}
	if opp := plan.Opportunity; opp != nil {
		e.Direction = opp.Direction()
		e.AmountIn.Set(opp.AmountIn)
		e.GrossProfit.Set(opp.GrossProfit)
		e.NetProfit.Set(opp.NetProfit)
	} else if plan.TieredFirst {
		e.Direction = "tiered-first"
	}
	return e
}

// Journal is an append-only sqlite audit log of execution plans
type Journal struct {
	db *sql.DB
}

// OpenJournal opens or creates the journal at path. ":memory:" keeps it in
// memory.
func OpenJournal(path string) (*Journal, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create journal dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// one connection keeps an in-memory database alive and serializes writes
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialise schema: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close closes the journal
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends e
func (j *Journal) Record(ctx context.Context, e Entry) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO plans (block_number, fingerprint, direction, amount_in, gross_profit, net_profit, bribe, outcome, tx_hash, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.BlockNumber, fmt.Sprintf("%016x", e.Fingerprint), e.Direction,
		bigString(e.AmountIn), bigString(e.GrossProfit), bigString(e.NetProfit), bigString(e.Bribe),
		e.Outcome, txHashString(e.TxHash), e.Detail, e.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record plan: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT block_number, fingerprint, direction, amount_in, gross_profit, net_profit, bribe, outcome, tx_hash, detail, created_at
		 FROM plans ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                                 Entry
			fingerprint, amountIn, gross, net string
			bribe, txHash                     string
			createdAt                         int64
		)
		if err := rows.Scan(&e.BlockNumber, &fingerprint, &e.Direction, &amountIn, &gross, &net, &bribe, &e.Outcome, &txHash, &e.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		if _, err := fmt.Sscanf(fingerprint, "%x", &e.Fingerprint); err != nil {
			return nil, fmt.Errorf("failed to parse fingerprint %q: %w", fingerprint, err)
		}
		e.AmountIn = parseBig(amountIn)
		e.GrossProfit = parseBig(gross)
		e.NetProfit = parseBig(net)
		e.Bribe = parseBig(bribe)
		if txHash != "" {
			e.TxHash = common.HexToHash(txHash)
		}
		e.CreatedAt = time.UnixMilli(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func bigString(x *big.Int) string {
	if x == nil {
		return "0"
	}
	return x.String()
}

func parseBig(s string) *big.Int {
	x, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int)
	}
	return x
}

func txHashString(h common.Hash) string {
	if h == (common.Hash{}) {
		return ""
	}
	return h.Hex()
}
