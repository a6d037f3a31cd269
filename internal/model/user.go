package model

import "time"

// Tier is a membership level.  BASIC through DIAMOND are derived from
// accumulated points; PREMIUM is only ever assigned by an administrator.
type Tier string

const (
    TierBasic   Tier = "BASIC"
    TierSilver  Tier = "SILVER"
    TierGold    Tier = "GOLD"
    TierDiamond Tier = "DIAMOND"
    TierPremium Tier = "PREMIUM"
)

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
    switch t {
    case TierBasic, TierSilver, TierGold, TierDiamond, TierPremium:
        return true
    }
    return false
}

// User represents an account as stored in the `users` table.  The
// identity itself is owned by the external auth provider; this row only
// carries the membership state attached to the provider's user ID.
//
// Fields:
//  ID               – primary key, equal to the token subject.
//  Email            – contact address (informational).
//  MembershipPoints – accumulated points, never negative.
//  MembershipLevel  – cached tier; recomputed in the same transaction as
//                     every points change unless it is PREMIUM.
//  CreatedAt        – timestamp of creation.
//  UpdatedAt        – timestamp of last update.
type User struct {
    ID               uint64    // users.id
    Email            string    // users.email
    MembershipPoints int64     // users.membership_points
    MembershipLevel  Tier      // users.membership_level
    CreatedAt        time.Time // users.created_at
    UpdatedAt        time.Time // users.updated_at
}
