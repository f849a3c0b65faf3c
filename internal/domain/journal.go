package domain

// EntryKind identifies a journaled ledger transition.
type EntryKind string

// EntryKind constants.
const (
	EntryFund              EntryKind = "FUND"
	EntryGrant             EntryKind = "GRANT"
	EntryRevoke            EntryKind = "REVOKE"
	EntryConfigure         EntryKind = "CONFIGURE"
	EntryDisable           EntryKind = "DISABLE"
	EntryThreshold         EntryKind = "THRESHOLD"
	EntryLock              EntryKind = "LOCK"
	EntryBurn              EntryKind = "BURN"
	EntryMint              EntryKind = "MINT"
	EntryRelease           EntryKind = "RELEASE"
	EntryFinalize          EntryKind = "FINALIZE"
	EntryRefund            EntryKind = "REFUND"
	EntryEmergencyWithdraw EntryKind = "EMERGENCY_WITHDRAW"
	EntryPause             EntryKind = "PAUSE"
	EntryUnpause           EntryKind = "UNPAUSE"
)

// JournalEntry is the write-ahead record of one committed transition.
// Entries record effects, not requests: replaying them never re-checks
// authorization or limits.
type JournalEntry struct {
	Seq       uint64    `json:"seq"`
	EntryID   string    `json:"entry_id"`
	ChainID   string    `json:"chain_id"`
	Kind      EntryKind `json:"kind"`
	Caller    Identity  `json:"caller"`
	Timestamp int64     `json:"timestamp"`

	Asset     string   `json:"asset,omitempty"`
	Holder    Identity `json:"holder,omitempty"` // sender, recipient or role holder
	Amount    uint64   `json:"amount,omitempty"`
	DepositID string   `json:"deposit_id,omitempty"`
	Chain     string   `json:"chain,omitempty"` // destination for LOCK/BURN, source for MINT/RELEASE
	Nonce     uint64   `json:"nonce,omitempty"`
	Role      Role     `json:"role,omitempty"`
	Threshold int      `json:"threshold,omitempty"`
	Reason    string   `json:"reason,omitempty"`

	// Config is the asset policy after the transition (CONFIGURE, DISABLE, MINT, RELEASE).
	Config *TokenConfig `json:"config,omitempty"`
}
