package store

import (
	"context"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"PrivateLine/server/internal/db"
	"PrivateLine/server/internal/models"
	apperrors "PrivateLine/server/pkg/errors"
)

// UserRepository resolves the sender profile attached to wire messages.
// Account management itself lives outside this service.
type UserRepository struct {
	q db.Querier
}

func NewUserRepository(q db.Querier) *UserRepository {
	return &UserRepository{q: q}
}

func (r *UserRepository) GetProfile(ctx context.Context, id int64) (*models.UserProfile, error) {
	query := psql.Select("id", "username", "avatar", "status", "last_seen").
		From("users").
		Where(squirrel.Eq{"id": id})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "userRepo.GetProfile.ToSql")
	}

	var u models.UserProfile
	err = r.q.QueryRow(ctx, sqlStr, args...).Scan(&u.ID, &u.Username, &u.Avatar, &u.Status, &u.LastSeen)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, errors.Wrap(err, "userRepo.GetProfile.Scan")
	}
	return &u, nil
}

// GetProfiles resolves several users at once, keyed by id. Missing ids are
// simply absent from the map.
func (r *UserRepository) GetProfiles(ctx context.Context, ids []int64) (map[int64]*models.UserProfile, error) {
	if len(ids) == 0 {
		return map[int64]*models.UserProfile{}, nil
	}

	query := psql.Select("id", "username", "avatar", "status", "last_seen").
		From("users").
		Where(squirrel.Eq{"id": ids})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "userRepo.GetProfiles.ToSql")
	}

	rows, err := r.q.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, errors.Wrap(err, "userRepo.GetProfiles.Query")
	}
	defer rows.Close()

	out := make(map[int64]*models.UserProfile, len(ids))
	for rows.Next() {
		var u models.UserProfile
		if err := rows.Scan(&u.ID, &u.Username, &u.Avatar, &u.Status, &u.LastSeen); err != nil {
			return nil, errors.Wrap(err, "userRepo.GetProfiles.Scan")
		}
		out[u.ID] = &u
	}
	return out, errors.Wrap(rows.Err(), "userRepo.GetProfiles.Rows")
}

// TouchLastSeen stamps the user's last-seen time; called when a session
// connects or disconnects.
func (r *UserRepository) TouchLastSeen(ctx context.Context, id, ts int64) error {
	query := psql.Update("users").
		Set("last_seen", ts).
		Where(squirrel.Eq{"id": id})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return errors.Wrap(err, "userRepo.TouchLastSeen.ToSql")
	}
	if _, err := r.q.Exec(ctx, sqlStr, args...); err != nil {
		return errors.Wrap(err, "userRepo.TouchLastSeen.Exec")
	}
	return nil
}
