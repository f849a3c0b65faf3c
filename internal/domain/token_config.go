package domain

// DailyWindowSeconds is the length of the rolling volume window.
const DailyWindowSeconds int64 = 86400

// TokenConfig is the per-asset transfer policy.
// Amounts are in the asset's base units, times are unix seconds.
type TokenConfig struct {
	Asset         string `json:"asset"`
	IsSupported   bool   `json:"is_supported"`
	MinAmount     uint64 `json:"min_amount"`
	MaxAmount     uint64 `json:"max_amount"`
	DailyLimit    uint64 `json:"daily_limit"`
	DailyUsed     uint64 `json:"daily_used"`
	LastResetTime int64  `json:"last_reset_time"`
}

// WindowExpired reports whether the daily window has elapsed at now.
func (c TokenConfig) WindowExpired(now int64) bool {
	return now-c.LastResetTime >= DailyWindowSeconds
}

// Remaining returns the volume still available in the current window.
func (c TokenConfig) Remaining() uint64 {
	if c.DailyUsed >= c.DailyLimit {
		return 0
	}
	return c.DailyLimit - c.DailyUsed
}
