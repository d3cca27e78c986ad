// Package quota decides whether an account may store another record.
// Free accounts get a fixed number of records per trailing week; pro
// accounts are unlimited until their subscription expires.
package quota

import (
	"fmt"
	"strings"
	"time"
)

// Tier is an account's subscription level.
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

const (
	// WeeklyLimit is the number of records a free account may store in Window.
	WeeklyLimit = 50
	// Window is the trailing interval the limit applies to.
	Window = 7 * 24 * time.Hour
)

// ParseTier maps a stored or user-supplied value to a Tier.
func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierFree, "":
		return TierFree, nil
	case TierPro:
		return TierPro, nil
	}
	return "", fmt.Errorf("ParseTier: unknown tier %q", s)
}

// Decision is the outcome of a quota check. Remaining is 0 for unlimited
// accounts. Expired is set when a pro subscription has lapsed and the
// caller should persist the downgrade.
type Decision struct {
	Admitted  bool `json:"admitted"`
	Remaining int  `json:"remaining"`
	Unlimited bool `json:"unlimited"`
	Expired   bool `json:"expired,omitempty"`
}

// Check decides at the current time. See CheckAt.
func Check(tier Tier, expiry *time.Time, rollingCount int) Decision {
	return CheckAt(time.Now(), tier, expiry, rollingCount)
}

// CheckAt decides whether a new record is admitted given the number of
// records stored in the trailing Window. A pro account whose expiry is not
// after now is treated as free. The gate is advisory: it reads no storage
// and holds no locks.
func CheckAt(now time.Time, tier Tier, expiry *time.Time, rollingCount int) Decision {
	if tier == TierPro {
		if expiry == nil || expiry.After(now) {
			return Decision{Admitted: true, Remaining: 0, Unlimited: true}
		}
		d := free(rollingCount)
		d.Expired = true
		return d
	}
	return free(rollingCount)
}

// WindowStart returns the beginning of the trailing window ending at now.
func WindowStart(now time.Time) time.Time {
	return now.Add(-Window)
}

func free(count int) Decision {
	return Decision{
		Admitted:  count < WeeklyLimit,
		Remaining: max(0, WeeklyLimit-count),
	}
}
