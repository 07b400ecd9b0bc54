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

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

var messageColumns = []string{
	"id", "from_id", "to_id", "page_id",
	"text", "iv", "tag", "cipher_version", "text_ecb", "text_preview",
	"media", "media_file_name", "stickers", "type_two", "lat", "lng",
	"reply_id", "story_id", "product_id",
	"seen", "deleted_one", "deleted_two", "forward", "edited", "time",
}

// Cursor selects which slice of a conversation a range query returns.
// At most one of the three fields is set; all zero means "latest page".
type Cursor struct {
	ExactID  int64
	AfterID  int64
	BeforeID int64
}

type MessageRepository struct {
	q db.Querier
}

func NewMessageRepository(q db.Querier) *MessageRepository {
	return &MessageRepository{q: q}
}

// WithTx returns a copy of the repository bound to tx.
func (r *MessageRepository) WithTx(tx pgx.Tx) *MessageRepository {
	return &MessageRepository{q: tx}
}

func (r *MessageRepository) Create(ctx context.Context, m *models.Message) error {
	query := psql.Insert("messages").
		Columns("from_id", "to_id", "page_id",
			"text", "iv", "tag", "cipher_version", "text_ecb", "text_preview",
			"media", "media_file_name", "stickers", "type_two", "lat", "lng",
			"reply_id", "story_id", "product_id", "forward", "time").
		Values(m.FromID, m.ToID, m.PageID,
			m.Text, m.IV, m.Tag, m.CipherVersion, m.TextECB, m.TextPreview,
			m.Media, m.MediaFileName, m.Stickers, m.TypeTwo, m.Lat, m.Lng,
			m.ReplyID, m.StoryID, m.ProductID, m.Forward, m.Time).
		Suffix("RETURNING id")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return errors.Wrap(err, "messageRepo.Create.ToSql")
	}
	if err := r.q.QueryRow(ctx, sqlStr, args...).Scan(&m.ID); err != nil {
		return errors.Wrap(err, "messageRepo.Create.Scan")
	}
	return nil
}

func (r *MessageRepository) FindByID(ctx context.Context, id int64) (*models.Message, error) {
	query := psql.Select(messageColumns...).
		From("messages").
		Where(squirrel.Eq{"id": id})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "messageRepo.FindByID.ToSql")
	}

	m, err := scanMessage(r.q.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrMessageNotFound
		}
		return nil, errors.Wrap(err, "messageRepo.FindByID.Scan")
	}
	return m, nil
}

// pairCondition matches messages exchanged between caller and peer that the
// caller's side of the soft-delete flags still shows.
func pairCondition(callerID, peerID int64) squirrel.Sqlizer {
	return squirrel.Or{
		squirrel.And{
			squirrel.Eq{"from_id": callerID, "to_id": peerID},
			squirrel.Eq{"deleted_one": false},
		},
		squirrel.And{
			squirrel.Eq{"from_id": peerID, "to_id": callerID},
			squirrel.Eq{"deleted_two": false},
		},
	}
}

// FindBetween returns messages of the pair visible to callerID, most recent
// first. The caller reverses for chronological display.
func (r *MessageRepository) FindBetween(ctx context.Context, callerID, peerID int64, cursor Cursor, limit uint64) ([]*models.Message, error) {
	query := psql.Select(messageColumns...).
		From("messages").
		Where(pairCondition(callerID, peerID)).
		OrderBy("id DESC").
		Limit(limit)

	switch {
	case cursor.ExactID != 0:
		query = query.Where(squirrel.Eq{"id": cursor.ExactID})
	case cursor.AfterID != 0:
		query = query.Where(squirrel.Gt{"id": cursor.AfterID})
	case cursor.BeforeID != 0:
		query = query.Where(squirrel.Lt{"id": cursor.BeforeID})
	}

	return r.queryMessages(ctx, query, "messageRepo.FindBetween")
}

// SearchPreview matches the plaintext preview column only; ciphertext is
// never searchable.
func (r *MessageRepository) SearchPreview(ctx context.Context, callerID, peerID int64, substr string, limit, offset uint64) ([]*models.Message, error) {
	query := psql.Select(messageColumns...).
		From("messages").
		Where(pairCondition(callerID, peerID)).
		Where(squirrel.ILike{"text_preview": "%" + escapeLike(substr) + "%"}).
		OrderBy("id DESC").
		Limit(limit).
		Offset(offset)

	return r.queryMessages(ctx, query, "messageRepo.SearchPreview")
}

// MarkSeen stamps every unseen message from peer to caller, returning the
// ids it touched. Re-marking already-seen rows matches nothing.
func (r *MessageRepository) MarkSeen(ctx context.Context, callerID, peerID, seenAt int64) ([]int64, error) {
	query := psql.Update("messages").
		Set("seen", seenAt).
		Where(squirrel.Eq{
			"from_id": peerID,
			"to_id":   callerID,
			"seen":    0,
		}).
		Suffix("RETURNING id")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "messageRepo.MarkSeen.ToSql")
	}

	rows, err := r.q.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, errors.Wrap(err, "messageRepo.MarkSeen.Query")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "messageRepo.MarkSeen.Scan")
		}
		ids = append(ids, id)
	}
	return ids, errors.Wrap(rows.Err(), "messageRepo.MarkSeen.Rows")
}

func (r *MessageRepository) CountUnseen(ctx context.Context, callerID, peerID int64) (int, error) {
	query := psql.Select("COUNT(*)").
		From("messages").
		Where(squirrel.Eq{
			"from_id": peerID,
			"to_id":   callerID,
			"seen":    0,
		}).
		Where(squirrel.Eq{"deleted_two": false})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "messageRepo.CountUnseen.ToSql")
	}

	var count int
	if err := r.q.QueryRow(ctx, sqlStr, args...).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "messageRepo.CountUnseen.Scan")
	}
	return count, nil
}

// CountUnseenBulk groups unseen counts by sender, one query for a whole
// conversation-list read. Peers with no unseen messages are absent from
// the result.
func (r *MessageRepository) CountUnseenBulk(ctx context.Context, callerID int64, peerIDs []int64) (map[int64]int, error) {
	out := make(map[int64]int, len(peerIDs))
	if len(peerIDs) == 0 {
		return out, nil
	}

	query := psql.Select("from_id", "COUNT(*)").
		From("messages").
		Where(squirrel.Eq{
			"to_id":   callerID,
			"from_id": peerIDs,
			"seen":    0,
		}).
		Where(squirrel.Eq{"deleted_two": false}).
		GroupBy("from_id")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "messageRepo.CountUnseenBulk.ToSql")
	}

	rows, err := r.q.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, errors.Wrap(err, "messageRepo.CountUnseenBulk.Query")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			peerID int64
			count  int
		)
		if err := rows.Scan(&peerID, &count); err != nil {
			return nil, errors.Wrap(err, "messageRepo.CountUnseenBulk.Scan")
		}
		out[peerID] = count
	}
	return out, errors.Wrap(rows.Err(), "messageRepo.CountUnseenBulk.Rows")
}

// UpdateCiphertext replaces the message's own cipher fields after an edit.
// Re-encryption always produces the authenticated format, so the version
// tag is stamped along with the material it describes; legacy rows upgrade
// here. Ownership is checked by the pipeline; the sender guard keeps a
// direct call from bypassing it.
func (r *MessageRepository) UpdateCiphertext(ctx context.Context, id, senderID int64, text, iv, tag, textECB, preview string) error {
	query := psql.Update("messages").
		Set("text", text).
		Set("iv", iv).
		Set("tag", tag).
		Set("cipher_version", models.CipherVersionGCM).
		Set("text_ecb", textECB).
		Set("text_preview", preview).
		Set("edited", true).
		Where(squirrel.Eq{"id": id, "from_id": senderID})

	return r.exec(ctx, query, "messageRepo.UpdateCiphertext")
}

// SetDeleted raises the given soft-delete flags. Flags only ever go up;
// there is no un-delete.
func (r *MessageRepository) SetDeleted(ctx context.Context, id int64, senderSide, recipientSide bool) error {
	query := psql.Update("messages").Where(squirrel.Eq{"id": id})
	if senderSide {
		query = query.Set("deleted_one", true)
	}
	if recipientSide {
		query = query.Set("deleted_two", true)
	}
	return r.exec(ctx, query, "messageRepo.SetDeleted")
}

func (r *MessageRepository) IncrementForward(ctx context.Context, id int64) error {
	query := psql.Update("messages").
		Set("forward", squirrel.Expr("forward + 1")).
		Where(squirrel.Eq{"id": id})
	return r.exec(ctx, query, "messageRepo.IncrementForward")
}

func (r *MessageRepository) exec(ctx context.Context, query squirrel.UpdateBuilder, op string) error {
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return errors.Wrap(err, op+".ToSql")
	}
	tag, err := r.q.Exec(ctx, sqlStr, args...)
	if err != nil {
		return errors.Wrap(err, op+".Exec")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrMessageNotFound
	}
	return nil
}

func (r *MessageRepository) queryMessages(ctx context.Context, query squirrel.SelectBuilder, op string) ([]*models.Message, error) {
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, op+".ToSql")
	}

	rows, err := r.q.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, errors.Wrap(err, op+".Query")
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, errors.Wrap(err, op+".Scan")
		}
		out = append(out, m)
	}
	return out, errors.Wrap(rows.Err(), op+".Rows")
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	var m models.Message
	err := row.Scan(
		&m.ID, &m.FromID, &m.ToID, &m.PageID,
		&m.Text, &m.IV, &m.Tag, &m.CipherVersion, &m.TextECB, &m.TextPreview,
		&m.Media, &m.MediaFileName, &m.Stickers, &m.TypeTwo, &m.Lat, &m.Lng,
		&m.ReplyID, &m.StoryID, &m.ProductID,
		&m.Seen, &m.DeletedOne, &m.DeletedTwo, &m.Forward, &m.Edited, &m.Time,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
