package relay

import (
	"bridge-ledger/internal/domain"
)

// Request headers of a signed request.
const (
	HeaderCaller    = "X-Bridge-Caller"
	HeaderTimestamp = "X-Bridge-Timestamp"
	HeaderNonce     = "X-Bridge-Nonce"
	HeaderSignature = "X-Bridge-Signature"
)

// TransferRequest opens a lock or burn.
type TransferRequest struct {
	Asset            string `json:"asset"`
	Amount           uint64 `json:"amount"`
	DestinationChain string `json:"destination_chain"`
}

// RoleRequest grants or revokes a role.
type RoleRequest struct {
	Role   domain.Role     `json:"role"`
	Holder domain.Identity `json:"holder"`
}

// ConfigureRequest sets an asset policy.
type ConfigureRequest struct {
	MinAmount  uint64 `json:"min_amount"`
	MaxAmount  uint64 `json:"max_amount"`
	DailyLimit uint64 `json:"daily_limit"`
}

// PauseRequest pauses the ledger.
type PauseRequest struct {
	Reason string `json:"reason"`
}

// FundRequest credits or withdraws collateral. Holder is the recipient of
// an emergency withdrawal.
type FundRequest struct {
	Asset  string          `json:"asset"`
	Holder domain.Identity `json:"holder"`
	Amount uint64          `json:"amount"`
}

// ThresholdRequest changes the validator threshold.
type ThresholdRequest struct {
	Threshold int `json:"threshold"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// StatusResponse describes the serving ledger.
type StatusResponse struct {
	ChainID     string `json:"chain_id"`
	Paused      bool   `json:"paused"`
	Threshold   int    `json:"threshold"`
	LastSeq     uint64 `json:"last_seq"`
	Subscribers int    `json:"subscribers"`
}

// HasRoleResponse answers a role query.
type HasRoleResponse struct {
	Role    domain.Role     `json:"role"`
	Holder  domain.Identity `json:"holder"`
	HasRole bool            `json:"has_role"`
}

// DepositResponse answers a replay guard query.
type DepositResponse struct {
	DepositID string                `json:"deposit_id"`
	Consumed  bool                  `json:"consumed"`
	Record    *domain.DepositRecord `json:"record,omitempty"`
}

// BalanceResponse answers a balance query.
type BalanceResponse struct {
	Asset   string          `json:"asset"`
	Holder  domain.Identity `json:"holder"`
	Balance uint64          `json:"balance"`
}

// AssetResponse summarizes one asset.
type AssetResponse struct {
	Asset   string              `json:"asset"`
	Custody uint64              `json:"custody"`
	Supply  uint64              `json:"supply"`
	Config  *domain.TokenConfig `json:"config,omitempty"`
}

// EventsResponse is one page of the event log. Next is the sequence to
// pass as after for the following page.
type EventsResponse struct {
	Events []*domain.Event `json:"events"`
	Next   uint64          `json:"next"`
}

// VolumeResponse is the daily transfer volume of an asset.
type VolumeResponse struct {
	Asset   string         `json:"asset"`
	Buckets []VolumeBucket `json:"buckets"`
}

// VolumeBucket is one day of one event type.
type VolumeBucket struct {
	Day    int64            `json:"day"`
	Type   domain.EventType `json:"type"`
	Count  uint64           `json:"count"`
	Amount uint64           `json:"amount"`
}
