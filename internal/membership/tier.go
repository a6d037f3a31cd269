// Package membership holds the pure points-to-tier rules.  Nothing here
// touches storage; the service layer applies these rules inside the same
// transaction that changes a user's points.
package membership

import "github.com/iliyamo/cinema-booking/internal/model"

// PointsPerUnit is the amount of money that earns one point.
const PointsPerUnit int64 = 10000

// threshold is the inclusive lower bound of a derived tier.
type threshold struct {
    min  int64
    tier model.Tier
}

// thresholds is ordered from the highest tier down so the first match wins.
var thresholds = []threshold{
    {min: 1200, tier: model.TierDiamond},
    {min: 600, tier: model.TierGold},
    {min: 200, tier: model.TierSilver},
    {min: 0, tier: model.TierBasic},
}

// TierFor maps accumulated points to a derived tier.  Boundary values map
// to the higher tier.  Negative points are treated as zero.  PREMIUM is
// never returned.
func TierFor(points int64) model.Tier {
    for _, t := range thresholds {
        if points >= t.min {
            return t.tier
        }
    }
    return model.TierBasic
}

// PointsFor converts a spent amount into points: floor(amount / 10000).
func PointsFor(amountSpent int64) int64 {
    if amountSpent <= 0 {
        return 0
    }
    return amountSpent / PointsPerUnit
}

// Recompute returns the tier a user should hold after a points change.
// PREMIUM is an administrative override and is kept as is.
func Recompute(current model.Tier, points int64) model.Tier {
    if current == model.TierPremium {
        return model.TierPremium
    }
    return TierFor(points)
}

// NextTier returns the next derived tier above points and how many points
// are still missing.  ok is false at DIAMOND.
func NextTier(points int64) (next model.Tier, missing int64, ok bool) {
    if points < 0 {
        points = 0
    }
    for i := len(thresholds) - 1; i >= 0; i-- {
        if thresholds[i].min > points {
            return thresholds[i].tier, thresholds[i].min - points, true
        }
    }
    return "", 0, false
}
