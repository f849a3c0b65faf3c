package domain

// DepositKind is the destination-side operation that consumed a deposit.
type DepositKind string

// DepositKind constants.
const (
	DepositKindMint    DepositKind = "MINT"
	DepositKindRelease DepositKind = "RELEASE"
)

// DepositRecord is the write-once tombstone of a consumed deposit identifier.
type DepositRecord struct {
	DepositID  string      `json:"deposit_id"`
	Consumed   bool        `json:"consumed"`
	Kind       DepositKind `json:"kind"`
	Asset      string      `json:"asset"`
	Amount     uint64      `json:"amount"`
	Recipient  Identity    `json:"recipient"`
	ConsumedAt int64       `json:"consumed_at"`
}
