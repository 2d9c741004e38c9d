package store

import (
	"context"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	ChatsGroupAdminForeignKey   = "chats_group_admin_id_fkey"
	ChatMembersChatIDForeignKey = "chat_members_chat_id_fkey"
	ChatMembersUserIDForeignKey = "chat_members_user_id_fkey"
	MessagesChatIDForeignKey    = "messages_chat_id_fkey"
	MessagesSenderIDForeignKey  = "messages_sender_id_fkey"
	UsersEmailKey               = "users_email_key"
	ChatMembersPrimaryKey       = "chat_members_pkey"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres implements Store on top of a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
	sb   sq.StatementBuilderType
}

var _ Store = (*Postgres)(nil)

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{
		pool: pool,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func pgError(err error) (code, constraint string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	return "", ""
}

// translate maps constraint violations onto the store's sentinel errors.
func translate(err error) error {
	if err == nil {
		return nil
	}

	code, constraint := pgError(err)
	switch code {
	case pgerrcode.UniqueViolation:
		switch constraint {
		case UsersEmailKey:
			return ErrEmailTaken
		case ChatMembersPrimaryKey:
			return ErrDuplicateMember
		}
	case pgerrcode.ForeignKeyViolation:
		switch constraint {
		case ChatMembersChatIDForeignKey, MessagesChatIDForeignKey:
			return ErrChatNotFound
		case ChatMembersUserIDForeignKey, MessagesSenderIDForeignKey, ChatsGroupAdminForeignKey:
			return ErrUserNotFound
		}
	}
	return err
}
