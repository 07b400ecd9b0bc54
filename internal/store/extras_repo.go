package store

import (
	"context"

	"github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"PrivateLine/server/internal/db"
)

// ExtrasRepository covers the per-(user, message) side tables: pins within
// a conversation and favorites.
type ExtrasRepository struct {
	q db.Querier
}

func NewExtrasRepository(q db.Querier) *ExtrasRepository {
	return &ExtrasRepository{q: q}
}

func (r *ExtrasRepository) SetPinned(ctx context.Context, userID, chatID, messageID int64, pinned bool) error {
	var query squirrel.Sqlizer
	if pinned {
		query = psql.Insert("pinned_messages").
			Columns("user_id", "chat_id", "message_id").
			Values(userID, chatID, messageID).
			Suffix("ON CONFLICT (user_id, message_id) DO NOTHING")
	} else {
		query = psql.Delete("pinned_messages").
			Where(squirrel.Eq{"user_id": userID, "message_id": messageID})
	}

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return errors.Wrap(err, "extrasRepo.SetPinned.ToSql")
	}
	if _, err := r.q.Exec(ctx, sqlStr, args...); err != nil {
		return errors.Wrap(err, "extrasRepo.SetPinned.Exec")
	}
	return nil
}

// ToggleFavorite flips the favorite mark and reports the resulting state.
func (r *ExtrasRepository) ToggleFavorite(ctx context.Context, userID, messageID int64) (bool, error) {
	del := psql.Delete("favorite_messages").
		Where(squirrel.Eq{"user_id": userID, "message_id": messageID})

	sqlStr, args, err := del.ToSql()
	if err != nil {
		return false, errors.Wrap(err, "extrasRepo.ToggleFavorite.ToSql")
	}
	tag, err := r.q.Exec(ctx, sqlStr, args...)
	if err != nil {
		return false, errors.Wrap(err, "extrasRepo.ToggleFavorite.Delete")
	}
	if tag.RowsAffected() > 0 {
		return false, nil
	}

	ins := psql.Insert("favorite_messages").
		Columns("user_id", "message_id").
		Values(userID, messageID).
		Suffix("ON CONFLICT (user_id, message_id) DO NOTHING")

	sqlStr, args, err = ins.ToSql()
	if err != nil {
		return false, errors.Wrap(err, "extrasRepo.ToggleFavorite.ToSql")
	}
	if _, err := r.q.Exec(ctx, sqlStr, args...); err != nil {
		return false, errors.Wrap(err, "extrasRepo.ToggleFavorite.Insert")
	}
	return true, nil
}

// ListFavorites returns the caller's favorited message ids, newest first.
func (r *ExtrasRepository) ListFavorites(ctx context.Context, userID int64, limit, offset uint64) ([]int64, error) {
	query := psql.Select("message_id").
		From("favorite_messages").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		Limit(limit).
		Offset(offset)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "extrasRepo.ListFavorites.ToSql")
	}

	rows, err := r.q.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, errors.Wrap(err, "extrasRepo.ListFavorites.Query")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "extrasRepo.ListFavorites.Scan")
		}
		ids = append(ids, id)
	}
	return ids, errors.Wrap(rows.Err(), "extrasRepo.ListFavorites.Rows")
}

// ListPinned returns the caller's pinned message ids within one conversation.
func (r *ExtrasRepository) ListPinned(ctx context.Context, userID, chatID int64) ([]int64, error) {
	query := psql.Select("message_id").
		From("pinned_messages").
		Where(squirrel.Eq{"user_id": userID, "chat_id": chatID}).
		OrderBy("pinned_at DESC")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "extrasRepo.ListPinned.ToSql")
	}

	rows, err := r.q.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, errors.Wrap(err, "extrasRepo.ListPinned.Query")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "extrasRepo.ListPinned.Scan")
		}
		ids = append(ids, id)
	}
	return ids, errors.Wrap(rows.Err(), "extrasRepo.ListPinned.Rows")
}
