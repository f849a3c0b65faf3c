package domain

// TransferKind is the source-side operation that opened a transfer.
type TransferKind string

// TransferKind constants.
const (
	TransferKindLock TransferKind = "LOCK"
	TransferKindBurn TransferKind = "BURN"
)

// TransferStatus is the saga state of an outbound transfer.
type TransferStatus string

// TransferStatus constants.
const (
	TransferPending   TransferStatus = "PENDING"
	TransferCompleted TransferStatus = "COMPLETED"
	TransferRefunded  TransferStatus = "REFUNDED"
)

// Transfer is the source-side record of a lock or burn awaiting its
// destination-side mint or release.
type Transfer struct {
	DepositID        string         `json:"deposit_id"`
	Kind             TransferKind   `json:"kind"`
	Asset            string         `json:"asset"`
	Amount           uint64         `json:"amount"`
	Sender           Identity       `json:"sender"`
	DestinationChain string         `json:"destination_chain"`
	Nonce            uint64         `json:"nonce"`
	Status           TransferStatus `json:"status"`
	CreatedAt        int64          `json:"created_at"`
	UpdatedAt        int64          `json:"updated_at"`
}

// Pending reports whether the transfer still awaits completion.
func (t Transfer) Pending() bool {
	return t.Status == TransferPending
}
