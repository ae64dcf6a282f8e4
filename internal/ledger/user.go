package ledger

import "time"

// MaxFeeLevel is a full protocol fee waiver.
const MaxFeeLevel = 100

type User struct {
	UserID              uint64     `json:"user_id"`
	Principal           string     `json:"principal"`
	ReferralCode        string     `json:"referral_code"`
	ReferredBy          uint64     `json:"referred_by,omitempty"`
	ReferredByExpiresAt *time.Time `json:"referred_by_expires_at,omitempty"`
	FeeLevel            uint8      `json:"fee_level"`
	FeeLevelExpiresAt   *time.Time `json:"fee_level_expires_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	LastLoginAt         time.Time  `json:"last_login_at"`
}

func (u *User) SetID(id uint64) { u.UserID = id }

// FeeDiscount returns the active fee level (percent off the protocol fee).
func (u User) FeeDiscount(now time.Time) uint8 {
	if u.FeeLevel == 0 {
		return 0
	}
	if u.FeeLevelExpiresAt != nil && !now.Before(*u.FeeLevelExpiresAt) {
		return 0
	}
	if u.FeeLevel > MaxFeeLevel {
		return MaxFeeLevel
	}
	return u.FeeLevel
}

// ActiveReferrer returns the referrer while the referral is unexpired.
func (u User) ActiveReferrer(now time.Time) (uint64, bool) {
	if u.ReferredBy == 0 {
		return 0, false
	}
	if u.ReferredByExpiresAt != nil && !now.Before(*u.ReferredByExpiresAt) {
		return 0, false
	}
	return u.ReferredBy, true
}
