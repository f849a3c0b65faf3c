package domain

// EventType identifies the payload carried by an Event.
type EventType string

// EventType constants.
const (
	EventTypeLock    EventType = "lock"
	EventTypeBurn    EventType = "burn"
	EventTypeMint    EventType = "mint"
	EventTypeRelease EventType = "release"
	EventTypeAudit   EventType = "audit"
)

// LockEvent announces collateral locked for minting on DestinationChain.
type LockEvent struct {
	DepositID        string   `json:"deposit_id"`
	Asset            string   `json:"asset"`
	Amount           uint64   `json:"amount"`
	Sender           Identity `json:"sender"`
	DestinationChain string   `json:"destination_chain"`
}

// BurnEvent announces wrapped supply burned for release on DestinationChain.
type BurnEvent struct {
	DepositID        string   `json:"deposit_id"`
	Asset            string   `json:"asset"`
	Amount           uint64   `json:"amount"`
	Sender           Identity `json:"sender"`
	DestinationChain string   `json:"destination_chain"`
}

// CreditEvent reports a destination-side mint or release.
type CreditEvent struct {
	DepositID   string   `json:"deposit_id"`
	Asset       string   `json:"asset"`
	Amount      uint64   `json:"amount"`
	Recipient   Identity `json:"recipient"`
	SourceChain string   `json:"source_chain"`
	Relayer     Identity `json:"relayer"`
}

// AuditEvent records an administrative action.
type AuditEvent struct {
	Action    string   `json:"action"`
	Caller    Identity `json:"caller"`
	Asset     string   `json:"asset,omitempty"`
	Holder    Identity `json:"holder,omitempty"`
	Role      Role     `json:"role,omitempty"`
	Amount    uint64   `json:"amount,omitempty"`
	DepositID string   `json:"deposit_id,omitempty"`
	Detail    string   `json:"detail,omitempty"`
}

// Event is a committed ledger transition published to subscribers.
// Exactly one payload field is set, matching Type.
type Event struct {
	Type      EventType    `json:"type"`
	Seq       uint64       `json:"seq"`
	ChainID   string       `json:"chain_id"`
	Timestamp int64        `json:"timestamp"`
	Lock      *LockEvent   `json:"lock,omitempty"`
	Burn      *BurnEvent   `json:"burn,omitempty"`
	Mint      *CreditEvent `json:"mint,omitempty"`
	Release   *CreditEvent `json:"release,omitempty"`
	Audit     *AuditEvent  `json:"audit,omitempty"`
}

// DepositID returns the deposit identifier carried by the payload, if any.
func (e *Event) DepositID() string {
	switch {
	case e.Lock != nil:
		return e.Lock.DepositID
	case e.Burn != nil:
		return e.Burn.DepositID
	case e.Mint != nil:
		return e.Mint.DepositID
	case e.Release != nil:
		return e.Release.DepositID
	case e.Audit != nil:
		return e.Audit.DepositID
	}
	return ""
}
