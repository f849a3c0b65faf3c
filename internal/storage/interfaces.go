package storage

import (
	"context"

	"bridge-ledger/internal/domain"
)

// JournalStore provides access to the ledger_journal write-ahead log.
type JournalStore interface {
	// Append persists e and assigns its sequence number, which is written back
	// to e.Seq and returned. Returns ErrDuplicateKey if e.EntryID exists, or if
	// e is a MINT/RELEASE whose (chain_id, deposit_id) is already consumed.
	Append(ctx context.Context, e *domain.JournalEntry) (uint64, error)

	// List returns up to limit entries with Seq > after, ordered by Seq ASC.
	// limit <= 0 means no limit.
	List(ctx context.Context, after uint64, limit int) ([]*domain.JournalEntry, error)

	// Last returns the highest assigned sequence number, or 0 if empty.
	Last(ctx context.Context) (uint64, error)
}

// TransferEvent is the analytics row of one lock, burn, mint or release.
type TransferEvent struct {
	ChainID     string
	Seq         uint64
	Type        domain.EventType
	DepositID   string
	Asset       string
	Amount      uint64
	Account     domain.Identity // sender for lock/burn, recipient for mint/release
	Counterpart string          // destination chain for lock/burn, source chain for mint/release
	Timestamp   int64           // unix seconds
}

// VolumeBucket aggregates transfer volume for one UTC day.
type VolumeBucket struct {
	Day    int64 // unix seconds at 00:00 UTC
	Type   domain.EventType
	Count  uint64
	Amount uint64
}

// TransferEventStore provides access to transfer_events analytics storage.
type TransferEventStore interface {
	// InsertBulk adds multiple events. Fails entire batch on duplicate (chain_id, seq).
	InsertBulk(ctx context.Context, events []*TransferEvent) error

	// GetByDepositID retrieves all events of a deposit, ordered by timestamp ASC.
	GetByDepositID(ctx context.Context, depositID string) ([]*TransferEvent, error)

	// DailyVolume aggregates asset volume on chainID per day and type within [start, end] (inclusive).
	DailyVolume(ctx context.Context, chainID, asset string, start, end int64) ([]VolumeBucket, error)
}

// TransferEventFromEvent flattens a ledger event into an analytics row.
// Returns false for audit events.
func TransferEventFromEvent(e *domain.Event) (*TransferEvent, bool) {
	row := &TransferEvent{
		ChainID:   e.ChainID,
		Seq:       e.Seq,
		Type:      e.Type,
		Timestamp: e.Timestamp,
	}
	switch {
	case e.Lock != nil:
		row.DepositID, row.Asset, row.Amount = e.Lock.DepositID, e.Lock.Asset, e.Lock.Amount
		row.Account, row.Counterpart = e.Lock.Sender, e.Lock.DestinationChain
	case e.Burn != nil:
		row.DepositID, row.Asset, row.Amount = e.Burn.DepositID, e.Burn.Asset, e.Burn.Amount
		row.Account, row.Counterpart = e.Burn.Sender, e.Burn.DestinationChain
	case e.Mint != nil:
		row.DepositID, row.Asset, row.Amount = e.Mint.DepositID, e.Mint.Asset, e.Mint.Amount
		row.Account, row.Counterpart = e.Mint.Recipient, e.Mint.SourceChain
	case e.Release != nil:
		row.DepositID, row.Asset, row.Amount = e.Release.DepositID, e.Release.Asset, e.Release.Amount
		row.Account, row.Counterpart = e.Release.Recipient, e.Release.SourceChain
	default:
		return nil, false
	}
	return row, true
}
