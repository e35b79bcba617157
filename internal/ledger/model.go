package ledger

import "time"

// Tier is the entitlement class that determines a subject's weekly limit.
type Tier string

const (
	TierNormal    Tier = "normal"
	TierPro       Tier = "pro"
	TierUnlimited Tier = "unlimited"
)

// UnlimitedRemaining is the sentinel returned for unlimited-tier subjects.
const UnlimitedRemaining = 999999

// Valid reports whether the tier is one of the known entitlement classes.
func (t Tier) Valid() bool {
	switch t {
	case TierNormal, TierPro, TierUnlimited:
		return true
	}
	return false
}

// Subject is one metered identity. WeeklyUsage is meaningful only while
// WeekID matches the current week label; otherwise it is logically zero.
type Subject struct {
	ID          string    `json:"id"`
	Nickname    string    `json:"nickname,omitempty"`
	Tier        Tier      `json:"tier"`
	WeeklyUsage int       `json:"weekly_usage"`
	WeekID      int       `json:"week_id"`
	ExtraQuota  int       `json:"extra_quota"`
	TotalUsage  int       `json:"total_usage"`
	Remark      string    `json:"remark,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// QuotaConfig holds the global per-tier weekly limits.
type QuotaConfig struct {
	NormalWeeklyLimit int `json:"normal_weekly_limit"`
	ProWeeklyLimit    int `json:"pro_weekly_limit"`
}

// LimitFor returns the weekly limit for the given tier. Unlimited has no
// meaningful limit and returns 0.
func (c QuotaConfig) LimitFor(tier Tier) int {
	switch tier {
	case TierPro:
		return c.ProWeeklyLimit
	case TierUnlimited:
		return 0
	default:
		return c.NormalWeeklyLimit
	}
}

// Decision is the outcome of a quota check.
type Decision struct {
	Allowed   bool   `json:"allowed"`
	Reason    string `json:"reason,omitempty"`
	Remaining int    `json:"remaining"`
	Tier      Tier   `json:"tier"`
}

const (
	// ReasonQuotaExceeded denies a subject with no weekly or extra quota left.
	ReasonQuotaExceeded = "quota_exceeded"
	// ReasonAnonymous marks the unmetered allow for callers without a subject id.
	ReasonAnonymous = "anonymous"
)
