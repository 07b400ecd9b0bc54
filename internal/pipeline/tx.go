package pipeline

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"PrivateLine/server/internal/directory"
	"PrivateLine/server/internal/store"
)

// PgxTransactor binds the message and directory repositories to one pgx
// transaction per unit of work.
type PgxTransactor struct {
	pool      *pgxpool.Pool
	messages  *store.MessageRepository
	directory *directory.Repository
}

func NewPgxTransactor(pool *pgxpool.Pool, messages *store.MessageRepository, dir *directory.Repository) *PgxTransactor {
	return &PgxTransactor{pool: pool, messages: messages, directory: dir}
}

func (t *PgxTransactor) WithinTx(ctx context.Context, fn func(msgs MessageStore, dir DirectoryStore) error) error {
	return pgx.BeginFunc(ctx, t.pool, func(tx pgx.Tx) error {
		return fn(t.messages.WithTx(tx), t.directory.WithTx(tx))
	})
}

var _ Transactor = (*PgxTransactor)(nil)
