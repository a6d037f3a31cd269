package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/membership"
	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/repository"
)

// MembershipService is the persistent side of the points ledger.  Points
// and the derived tier are always written in the same transaction.
type MembershipService struct {
	db    *sql.DB
	users *repository.UserRepo
	log   *zap.Logger
}

func NewMembershipService(db *sql.DB, users *repository.UserRepo, log *zap.Logger) *MembershipService {
	if log == nil {
		log = zap.NewNop()
	}
	return &MembershipService{db: db, users: users, log: log.Named("membership")}
}

// Membership is the read model of a user's membership.
type Membership struct {
	UserID        uint64     `json:"user_id"`
	Points        int64      `json:"points"`
	Tier          model.Tier `json:"tier"`
	DisplayPoints string     `json:"display_points"`
	NextTier      model.Tier `json:"next_tier,omitempty"`
	PointsToNext  int64      `json:"points_to_next,omitempty"`
}

// Register makes sure a membership row exists for an authenticated user.
func (s *MembershipService) Register(ctx context.Context, userID uint64, email string) error {
	if userID == 0 {
		return validation("user id is required")
	}
	return persistence("register user", s.users.Ensure(ctx, userID, email))
}

// Get returns the membership of userID, creating a BASIC row on first use.
func (s *MembershipService) Get(ctx context.Context, userID uint64) (*Membership, error) {
	if err := s.Register(ctx, userID, ""); err != nil {
		return nil, err
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, mapRepoErr("get user", err)
	}
	return membershipOf(u), nil
}

func membershipOf(u *model.User) *Membership {
	m := &Membership{
		UserID:        u.ID,
		Points:        u.MembershipPoints,
		Tier:          u.MembershipLevel,
		DisplayPoints: strconv.FormatInt(u.MembershipPoints, 10),
	}
	if u.MembershipLevel == model.TierPremium {
		m.DisplayPoints = "unlimited"
		return m
	}
	if next, missing, ok := membership.NextTier(u.MembershipPoints); ok {
		m.NextTier = next
		m.PointsToNext = missing
	}
	return m
}

// AddPoints converts amountSpent into points, adds them and recomputes the
// tier in one transaction.
func (s *MembershipService) AddPoints(ctx context.Context, userID uint64, amountSpent int64) (*model.User, error) {
	if amountSpent < 0 {
		return nil, validation("amount spent must not be negative")
	}
	var out *model.User
	err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		u, _, err := s.addPointsTx(ctx, tx, userID, amountSpent)
		out = u
		return err
	})
	if err != nil {
		return nil, classify("add points", err)
	}
	return out, nil
}

// addPointsTx is the transactional core shared with booking confirmation.
// It returns the updated user and the points earned.
func (s *MembershipService) addPointsTx(ctx context.Context, tx *sql.Tx, userID uint64, amountSpent int64) (*model.User, int64, error) {
	earned := membership.PointsFor(amountSpent)
	var (
		u   *model.User
		err error
	)
	if earned > 0 {
		u, err = s.users.AddPointsTx(ctx, tx, userID, earned)
	} else {
		u, err = s.users.GetByIDTx(ctx, tx, userID)
	}
	if err != nil {
		return nil, 0, mapRepoErr("add points", err)
	}

	next := membership.Recompute(u.MembershipLevel, u.MembershipPoints)
	if next != u.MembershipLevel {
		ok, err := s.users.SetLevelTx(ctx, tx, userID, u.MembershipLevel, next)
		if err != nil {
			return nil, 0, persistence("set tier", err)
		}
		if !ok {
			return nil, 0, persistence("set tier", fmt.Errorf("tier of user %d changed concurrently", userID))
		}
		s.log.Info("tier changed",
			zap.Uint64("user_id", userID),
			zap.String("from", string(u.MembershipLevel)),
			zap.String("to", string(next)),
			zap.Int64("points", u.MembershipPoints))
		u.MembershipLevel = next
	}
	return u, earned, nil
}

// GrantPremium assigns the administrative PREMIUM tier.  Granting it twice
// is a no-op.
func (s *MembershipService) GrantPremium(ctx context.Context, userID uint64) (*Membership, error) {
	return s.setTier(ctx, userID, "grant premium", func(u *model.User) model.Tier {
		return model.TierPremium
	})
}

// RevokePremium drops PREMIUM and restores the tier derived from points.
// Users that are not PREMIUM are left unchanged.
func (s *MembershipService) RevokePremium(ctx context.Context, userID uint64) (*Membership, error) {
	return s.setTier(ctx, userID, "revoke premium", func(u *model.User) model.Tier {
		if u.MembershipLevel != model.TierPremium {
			return u.MembershipLevel
		}
		return membership.TierFor(u.MembershipPoints)
	})
}

func (s *MembershipService) setTier(ctx context.Context, userID uint64, op string, target func(*model.User) model.Tier) (*Membership, error) {
	if err := s.Register(ctx, userID, ""); err != nil {
		return nil, err
	}
	var out *model.User
	err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		u, err := s.users.GetByIDTx(ctx, tx, userID)
		if err != nil {
			return mapRepoErr(op, err)
		}
		to := target(u)
		ok, err := s.users.SetLevelTx(ctx, tx, userID, u.MembershipLevel, to)
		if err != nil {
			return persistence(op, err)
		}
		if !ok {
			return persistence(op, fmt.Errorf("tier of user %d changed concurrently", userID))
		}
		u.MembershipLevel = to
		out = u
		return nil
	})
	if err != nil {
		return nil, classify(op, err)
	}
	s.log.Info(op, zap.Uint64("user_id", userID), zap.String("tier", string(out.MembershipLevel)))
	return membershipOf(out), nil
}

// mapRepoErr turns repository sentinels into service sentinels and wraps
// anything else as a persistence failure.
func mapRepoErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, repository.ErrShowtimeNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, repository.ErrForbidden):
		// another user's booking is reported as missing
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	default:
		return persistence(op, err)
	}
}

// classify passes domain errors through untouched and wraps the rest.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrConflict), errors.Is(err, ErrInvalidState), errors.Is(err, ErrNotFound),
		errors.Is(err, ErrValidation), errors.Is(err, ErrPersistence), errors.Is(err, ErrPaymentInProgress),
		errors.Is(err, ErrScheduleOverlap):
		return err
	default:
		return persistence(op, err)
	}
}
