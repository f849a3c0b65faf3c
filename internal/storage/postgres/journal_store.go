package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"bridge-ledger/internal/domain"
	"bridge-ledger/internal/storage"
)

// JournalStore implements storage.JournalStore using PostgreSQL.
//
// Sequence numbers are assigned under an exclusive table lock, so they are
// dense and commit in order. A MINT or RELEASE entry also inserts its
// (chain_id, deposit_id) into consumed_deposits in the same transaction;
// the primary key there rejects a second consumption independently of the
// in-memory replay guard.
type JournalStore struct {
	pool *Pool
}

// NewJournalStore creates a new JournalStore.
func NewJournalStore(pool *Pool) *JournalStore {
	return &JournalStore{pool: pool}
}

// Compile-time interface check.
var _ storage.JournalStore = (*JournalStore)(nil)

// Append persists e and assigns its sequence number.
func (s *JournalStore) Append(ctx context.Context, e *domain.JournalEntry) (seq uint64, err error) {
	if e == nil || e.EntryID == "" || e.Kind == "" {
		return 0, storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("journal_append", start, err) }(time.Now())

	payload, err := json.Marshal(e)
	if err != nil {
		return 0, fmt.Errorf("marshal journal entry: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `LOCK TABLE ledger_journal IN EXCLUSIVE MODE`); err != nil {
		return 0, fmt.Errorf("lock journal: %w", err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO ledger_journal (seq, entry_id, chain_id, kind, caller, ts, deposit_id, payload)
		SELECT COALESCE(MAX(seq), 0) + 1, $1, $2, $3, $4, $5, NULLIF($6, ''), $7
		FROM ledger_journal
		RETURNING seq
	`,
		e.EntryID,
		e.ChainID,
		string(e.Kind),
		string(e.Caller),
		e.Timestamp,
		e.DepositID,
		payload,
	).Scan(&seq)
	if err != nil {
		if isDuplicateKeyError(err) {
			return 0, storage.ErrDuplicateKey
		}
		return 0, fmt.Errorf("insert journal entry: %w", err)
	}

	if e.Kind == domain.EntryMint || e.Kind == domain.EntryRelease {
		_, err = tx.Exec(ctx, `
			INSERT INTO consumed_deposits (chain_id, deposit_id, kind, seq, consumed_at)
			VALUES ($1, $2, $3, $4, $5)
		`, e.ChainID, e.DepositID, string(e.Kind), seq, e.Timestamp)
		if err != nil {
			if isDuplicateKeyError(err) {
				return 0, storage.ErrDuplicateKey
			}
			return 0, fmt.Errorf("insert consumed deposit: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	e.Seq = seq
	return seq, nil
}

// List returns up to limit entries with Seq > after, ordered by Seq ASC.
func (s *JournalStore) List(ctx context.Context, after uint64, limit int) (entries []*domain.JournalEntry, err error) {
	defer func(start time.Time) { observe("journal_list", start, err) }(time.Now())

	query := `
		SELECT seq, payload
		FROM ledger_journal
		WHERE seq > $1
		ORDER BY seq ASC
	`
	args := []any{after}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Last returns the highest assigned sequence number, or 0 if empty.
func (s *JournalStore) Last(ctx context.Context) (seq uint64, err error) {
	defer func(start time.Time) { observe("journal_last", start, err) }(time.Now())

	if err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM ledger_journal`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last journal seq: %w", err)
	}
	return seq, nil
}

// IsConsumed reports whether the journal holds a MINT or RELEASE of
// depositID on chainID.
func (s *JournalStore) IsConsumed(ctx context.Context, chainID, depositID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM consumed_deposits WHERE chain_id = $1 AND deposit_id = $2)
	`, chainID, depositID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check consumed deposit: %w", err)
	}
	return exists, nil
}

func scanEntries(rows pgx.Rows) ([]*domain.JournalEntry, error) {
	var entries []*domain.JournalEntry
	for rows.Next() {
		var seq uint64
		var payload []byte
		if err := rows.Scan(&seq, &payload); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}

		var e domain.JournalEntry
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("decode journal entry %d: %w", seq, err)
		}
		e.Seq = seq
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal rows: %w", err)
	}
	return entries, nil
}
