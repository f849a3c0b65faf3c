package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"bridge-ledger/internal/domain"
	"bridge-ledger/internal/storage"
)

// TransferEventStore implements storage.TransferEventStore using ClickHouse.
type TransferEventStore struct {
	conn *Conn
}

// NewTransferEventStore creates a new TransferEventStore.
func NewTransferEventStore(conn *Conn) *TransferEventStore {
	return &TransferEventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TransferEventStore = (*TransferEventStore)(nil)

// InsertBulk adds multiple events. Fails entire batch on duplicate (chain_id, seq).
// MergeTree does not enforce keys, so duplicates are checked before insert.
func (s *TransferEventStore) InsertBulk(ctx context.Context, events []*storage.TransferEvent) (err error) {
	if len(events) == 0 {
		return nil
	}
	defer func(start time.Time) { observe("transfer_events_insert", start, err) }(time.Now())

	type key struct {
		chainID string
		seq     uint64
	}
	seen := make(map[key]struct{}, len(events))
	for _, e := range events {
		if e == nil || e.ChainID == "" || e.Seq == 0 {
			return storage.ErrInvalidInput
		}
		k := key{e.ChainID, e.Seq}
		if _, dup := seen[k]; dup {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	for _, e := range events {
		exists, err := s.exists(ctx, e.ChainID, e.Seq)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO transfer_events (
			chain_id, seq, event_type, deposit_id, asset, amount, account, counterpart, timestamp
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		err = batch.Append(
			e.ChainID, e.Seq, string(e.Type), e.DepositID, e.Asset,
			e.Amount, string(e.Account), e.Counterpart, e.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByDepositID retrieves all events of a deposit, ordered by timestamp ASC.
func (s *TransferEventStore) GetByDepositID(ctx context.Context, depositID string) ([]*storage.TransferEvent, error) {
	query := `
		SELECT chain_id, seq, event_type, deposit_id, asset, amount, account, counterpart, timestamp
		FROM transfer_events
		WHERE deposit_id = ?
		ORDER BY timestamp ASC, chain_id ASC, seq ASC
	`

	rows, err := s.conn.Query(ctx, query, depositID)
	if err != nil {
		return nil, fmt.Errorf("query by deposit id: %w", err)
	}
	defer rows.Close()

	return scanTransferEvents(rows)
}

// DailyVolume aggregates asset volume on chainID per day and type within [start, end] (inclusive).
func (s *TransferEventStore) DailyVolume(ctx context.Context, chainID, asset string, start, end int64) (buckets []storage.VolumeBucket, err error) {
	if start > end {
		return nil, storage.ErrInvalidInput
	}
	defer func(t time.Time) { observe("transfer_events_daily_volume", t, err) }(time.Now())

	query := `
		SELECT intDiv(timestamp, 86400) * 86400 AS day, event_type, count() AS n, sum(amount) AS total
		FROM transfer_events
		WHERE chain_id = ? AND asset = ? AND timestamp >= ? AND timestamp <= ?
		GROUP BY day, event_type
		ORDER BY day ASC, event_type ASC
	`

	rows, err := s.conn.Query(ctx, query, chainID, asset, start, end)
	if err != nil {
		return nil, fmt.Errorf("query daily volume: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var b storage.VolumeBucket
		var eventType string
		if err := rows.Scan(&b.Day, &eventType, &b.Count, &b.Amount); err != nil {
			return nil, fmt.Errorf("scan volume row: %w", err)
		}
		b.Type = domain.EventType(eventType)
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate volume rows: %w", err)
	}
	return buckets, nil
}

// exists checks if an event with the given key exists.
func (s *TransferEventStore) exists(ctx context.Context, chainID string, seq uint64) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `
		SELECT count() FROM transfer_events WHERE chain_id = ? AND seq = ?
	`, chainID, seq).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanTransferEvents(rows driver.Rows) ([]*storage.TransferEvent, error) {
	var events []*storage.TransferEvent

	for rows.Next() {
		var e storage.TransferEvent
		var eventType, account string
		err := rows.Scan(
			&e.ChainID, &e.Seq, &eventType, &e.DepositID, &e.Asset,
			&e.Amount, &account, &e.Counterpart, &e.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transfer event row: %w", err)
		}
		e.Type = domain.EventType(eventType)
		e.Account = domain.Identity(account)
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transfer event rows: %w", err)
	}
	return events, nil
}
