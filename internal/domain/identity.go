package domain

// Identity names a balance holder or a caller.
// Authenticating identities are base58-encoded ed25519 public keys.
type Identity string

// CustodyAccount holds collateral locked by the bridge.
// It is never a valid caller.
const CustodyAccount Identity = "bridge-custody"

// BreakerAccount is the caller recorded when the integrity breaker pauses
// the ledger. It is never a valid caller.
const BreakerAccount Identity = "bridge-breaker"
