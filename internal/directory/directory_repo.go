package directory

import (
	"context"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"PrivateLine/server/internal/db"
	"PrivateLine/server/internal/models"
)

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// Repository holds per-(owner, counterpart) conversation metadata. Rows are
// created lazily by upserts; reads synthesize defaults when no row exists.
type Repository struct {
	q db.Querier
}

func NewRepository(q db.Querier) *Repository {
	return &Repository{q: q}
}

func (r *Repository) WithTx(tx pgx.Tx) *Repository {
	return &Repository{q: tx}
}

func (r *Repository) Get(ctx context.Context, owner, counterpart int64) (*models.ConversationEntry, error) {
	query := psql.Select("owner_id", "counterpart_id", "time", "color", "notify", "call_chat", "archive", "pin").
		From("conversations").
		Where(squirrel.Eq{"owner_id": owner, "counterpart_id": counterpart})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "directoryRepo.Get.ToSql")
	}

	var e models.ConversationEntry
	err = r.q.QueryRow(ctx, sqlStr, args...).
		Scan(&e.OwnerID, &e.CounterpartID, &e.Time, &e.Color, &e.Notify, &e.CallChat, &e.Archive, &e.Pin)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.DefaultConversationEntry(owner, counterpart), nil
		}
		return nil, errors.Wrap(err, "directoryRepo.Get.Scan")
	}
	return &e, nil
}

// Touch bumps last activity for one direction. Send runs it for both
// directions inside the message transaction so both participants' lists
// reorder together.
func (r *Repository) Touch(ctx context.Context, owner, counterpart, ts int64) error {
	query := psql.Insert("conversations").
		Columns("owner_id", "counterpart_id", "time").
		Values(owner, counterpart, ts).
		Suffix("ON CONFLICT (owner_id, counterpart_id) DO UPDATE SET time = EXCLUDED.time")

	return r.exec(ctx, query, "directoryRepo.Touch")
}

var flagColumns = map[string]bool{
	"notify":    true,
	"call_chat": true,
	"archive":   true,
	"pin":       true,
}

// SetFlag writes one boolean flag on the owner's direction only.
// Valid columns: notify, call_chat, archive, pin.
func (r *Repository) SetFlag(ctx context.Context, owner, counterpart int64, column string, value bool) error {
	if !flagColumns[column] {
		return errors.Errorf("directoryRepo.SetFlag: unknown column %q", column)
	}
	query := psql.Insert("conversations").
		Columns("owner_id", "counterpart_id", column).
		Values(owner, counterpart, value).
		Suffix("ON CONFLICT (owner_id, counterpart_id) DO UPDATE SET " + column + " = EXCLUDED." + column)

	return r.exec(ctx, query, "directoryRepo.SetFlag")
}

// SetColor writes both directions: the accent color is a shared identifier
// for the same logical conversation.
func (r *Repository) SetColor(ctx context.Context, owner, counterpart int64, color string) error {
	for _, pair := range [][2]int64{{owner, counterpart}, {counterpart, owner}} {
		query := psql.Insert("conversations").
			Columns("owner_id", "counterpart_id", "color").
			Values(pair[0], pair[1], color).
			Suffix("ON CONFLICT (owner_id, counterpart_id) DO UPDATE SET color = EXCLUDED.color")
		if err := r.exec(ctx, query, "directoryRepo.SetColor"); err != nil {
			return err
		}
	}
	return nil
}

// ListForOwner returns the owner's conversations ordered by last activity.
func (r *Repository) ListForOwner(ctx context.Context, owner int64, archived bool, limit, offset uint64) ([]*models.ConversationEntry, error) {
	query := psql.Select("owner_id", "counterpart_id", "time", "color", "notify", "call_chat", "archive", "pin").
		From("conversations").
		Where(squirrel.Eq{"owner_id": owner, "archive": archived}).
		OrderBy("time DESC").
		Limit(limit).
		Offset(offset)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "directoryRepo.ListForOwner.ToSql")
	}

	rows, err := r.q.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, errors.Wrap(err, "directoryRepo.ListForOwner.Query")
	}
	defer rows.Close()

	var out []*models.ConversationEntry
	for rows.Next() {
		var e models.ConversationEntry
		if err := rows.Scan(&e.OwnerID, &e.CounterpartID, &e.Time, &e.Color, &e.Notify, &e.CallChat, &e.Archive, &e.Pin); err != nil {
			return nil, errors.Wrap(err, "directoryRepo.ListForOwner.Scan")
		}
		out = append(out, &e)
	}
	return out, errors.Wrap(rows.Err(), "directoryRepo.ListForOwner.Rows")
}

func (r *Repository) exec(ctx context.Context, query squirrel.InsertBuilder, op string) error {
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return errors.Wrap(err, op+".ToSql")
	}
	if _, err := r.q.Exec(ctx, sqlStr, args...); err != nil {
		return errors.Wrap(err, op+".Exec")
	}
	return nil
}
