package store

import (
	"context"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"PrivateLine/server/internal/db"
	"PrivateLine/server/internal/models"
)

type ReactionRepository struct {
	q db.Querier
}

func NewReactionRepository(q db.Querier) *ReactionRepository {
	return &ReactionRepository{q: q}
}

// Get returns the caller's current reaction on the message, nil if none.
func (r *ReactionRepository) Get(ctx context.Context, userID, messageID int64) (*models.Reaction, error) {
	query := psql.Select("user_id", "message_id", "reaction").
		From("reactions").
		Where(squirrel.Eq{"user_id": userID, "message_id": messageID})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "reactionRepo.Get.ToSql")
	}

	var re models.Reaction
	err = r.q.QueryRow(ctx, sqlStr, args...).Scan(&re.UserID, &re.MessageID, &re.Reaction)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "reactionRepo.Get.Scan")
	}
	return &re, nil
}

// Upsert sets the single reaction a user holds on a message.
func (r *ReactionRepository) Upsert(ctx context.Context, userID, messageID int64, reaction string) error {
	query := psql.Insert("reactions").
		Columns("user_id", "message_id", "reaction").
		Values(userID, messageID, reaction).
		Suffix("ON CONFLICT (user_id, message_id) DO UPDATE SET reaction = EXCLUDED.reaction, updated_at = NOW()")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return errors.Wrap(err, "reactionRepo.Upsert.ToSql")
	}
	if _, err := r.q.Exec(ctx, sqlStr, args...); err != nil {
		return errors.Wrap(err, "reactionRepo.Upsert.Exec")
	}
	return nil
}

func (r *ReactionRepository) Delete(ctx context.Context, userID, messageID int64) error {
	query := psql.Delete("reactions").
		Where(squirrel.Eq{"user_id": userID, "message_id": messageID})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return errors.Wrap(err, "reactionRepo.Delete.ToSql")
	}
	if _, err := r.q.Exec(ctx, sqlStr, args...); err != nil {
		return errors.Wrap(err, "reactionRepo.Delete.Exec")
	}
	return nil
}

// ListForMessages returns all reactions on the given messages, keyed by
// message id, so a page of history resolves in one query.
func (r *ReactionRepository) ListForMessages(ctx context.Context, messageIDs []int64) (map[int64][]models.Reaction, error) {
	if len(messageIDs) == 0 {
		return map[int64][]models.Reaction{}, nil
	}

	query := psql.Select("user_id", "message_id", "reaction").
		From("reactions").
		Where(squirrel.Eq{"message_id": messageIDs})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "reactionRepo.ListForMessages.ToSql")
	}

	rows, err := r.q.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, errors.Wrap(err, "reactionRepo.ListForMessages.Query")
	}
	defer rows.Close()

	out := make(map[int64][]models.Reaction)
	for rows.Next() {
		var re models.Reaction
		if err := rows.Scan(&re.UserID, &re.MessageID, &re.Reaction); err != nil {
			return nil, errors.Wrap(err, "reactionRepo.ListForMessages.Scan")
		}
		out[re.MessageID] = append(out[re.MessageID], re)
	}
	return out, errors.Wrap(rows.Err(), "reactionRepo.ListForMessages.Rows")
}
