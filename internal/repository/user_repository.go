package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/cinema-booking/internal/database"
	"github.com/iliyamo/cinema-booking/internal/model"
)

// UserRepo stores the membership state attached to auth-provider users.
type UserRepo struct{ db *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `id, email, membership_points, membership_level, created_at, updated_at`

// Ensure inserts a BASIC user with zero points unless the row already
// exists.  It is safe to call on every authenticated request.
func (r *UserRepo) Ensure(ctx context.Context, id uint64, email string) error {
	now := toMillis(time.Now())
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, membership_points, membership_level, created_at, updated_at)
		 VALUES (?, ?, 0, ?, ?, ?)`,
		id, strings.ToLower(strings.TrimSpace(email)), string(model.TierBasic), now, now)
	if err != nil && !database.IsDuplicate(err) {
		return err
	}
	return nil
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	return getUser(ctx, r.db, id)
}

// GetByIDTx fetches a user inside the caller's transaction.
func (r *UserRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.User, error) {
	return getUser(ctx, tx, id)
}

func getUser(ctx context.Context, q querier, id uint64) (*model.User, error) {
	var (
		u                model.User
		level            string
		created, updated int64
	)
	err := q.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id).
		Scan(&u.ID, &u.Email, &u.MembershipPoints, &level, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.MembershipLevel = model.Tier(level)
	u.CreatedAt = fromMillis(created)
	u.UpdatedAt = fromMillis(updated)
	return &u, nil
}

// AddPointsTx adds delta points with a single relative update and returns
// the row as seen by the transaction afterwards.  The update takes the row
// lock, so the caller can recompute the tier from the returned points
// before committing.
func (r *UserRepo) AddPointsTx(ctx context.Context, tx *sql.Tx, id uint64, delta int64) (*model.User, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE users SET membership_points = membership_points + ?, updated_at = ? WHERE id = ?`,
		delta, toMillis(time.Now()), id)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return getUser(ctx, tx, id)
}

// SetLevelTx changes the membership level only when the stored level still
// equals from.  It reports whether the row was changed.
func (r *UserRepo) SetLevelTx(ctx context.Context, tx *sql.Tx, id uint64, from, to model.Tier) (bool, error) {
	if from == to {
		return true, nil
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE users SET membership_level = ?, updated_at = ? WHERE id = ? AND membership_level = ?`,
		string(to), toMillis(time.Now()), id, string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
