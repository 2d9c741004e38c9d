package store

import (
	"context"
	"errors"

	"chatrelay/server/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/samber/lo"
)

const chatColumns = "c.id, c.chat_name, c.is_group_chat, c.group_admin_id, c.created_at, c.updated_at"

func scanChat(row pgx.Row) (*models.Chat, error) {
	var chat models.Chat
	err := row.Scan(&chat.ID, &chat.ChatName, &chat.IsGroupChat, &chat.GroupAdminID, &chat.CreatedAt, &chat.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

func (s *Postgres) FindDirectChat(ctx context.Context, userA, userB string) (*models.Chat, error) {
	return scanChat(s.pool.QueryRow(ctx, `
		SELECT `+chatColumns+`
		FROM chats c
		WHERE NOT c.is_group_chat
		  AND EXISTS (SELECT 1 FROM chat_members WHERE chat_id = c.id AND user_id = $1)
		  AND EXISTS (SELECT 1 FROM chat_members WHERE chat_id = c.id AND user_id = $2)
		  AND (SELECT COUNT(*) FROM chat_members WHERE chat_id = c.id) = 2
		ORDER BY c.updated_at DESC, c.id
		LIMIT 1
	`, userA, userB))
}

func (s *Postgres) CreateDirectChat(ctx context.Context, userA, userB, name string) (*models.Chat, error) {
	key := models.DirectKey(userA, userB)

	var chat *models.Chat
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		chat, err = scanChat(tx.QueryRow(ctx, `
			INSERT INTO chats AS c (chat_name, is_group_chat, direct_key)
			VALUES ($1, FALSE, $2)
			ON CONFLICT (direct_key) DO NOTHING
			RETURNING `+chatColumns,
			name, key))
		if errors.Is(err, ErrChatNotFound) {
			// another request created the pair first
			chat = nil
			return nil
		}
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO chat_members (chat_id, user_id) VALUES ($1, $2), ($1, $3)
		`, chat.ID, userA, userB)
		return translate(err)
	})
	if err != nil {
		return nil, err
	}

	if chat != nil {
		return chat, nil
	}

	return scanChat(s.pool.QueryRow(ctx, `SELECT `+chatColumns+` FROM chats c WHERE c.direct_key = $1`, key))
}

func (s *Postgres) CreateGroupChat(ctx context.Context, name, adminID string, memberIDs []string) (*models.Chat, error) {
	members := lo.Uniq(append([]string{adminID}, memberIDs...))

	var chat *models.Chat
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		chat, err = scanChat(tx.QueryRow(ctx, `
			INSERT INTO chats AS c (chat_name, is_group_chat, group_admin_id)
			VALUES ($1, TRUE, $2)
			RETURNING `+chatColumns,
			name, adminID))
		if err != nil {
			return translate(err)
		}

		builder := s.sb.Insert("chat_members").Columns("chat_id", "user_id")
		for _, member := range members {
			builder = builder.Values(chat.ID, member)
		}

		query, args, err := builder.ToSql()
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, query, args...)
		return translate(err)
	})
	if err != nil {
		return nil, err
	}
	return chat, nil
}

func (s *Postgres) GetChat(ctx context.Context, id string) (*models.Chat, error) {
	return scanChat(s.pool.QueryRow(ctx, `SELECT `+chatColumns+` FROM chats c WHERE c.id = $1`, id))
}

func (s *Postgres) RenameChat(ctx context.Context, id, name string) (*models.Chat, error) {
	return scanChat(s.pool.QueryRow(ctx, `
		UPDATE chats AS c SET chat_name = $2, updated_at = NOW()
		WHERE c.id = $1
		RETURNING `+chatColumns,
		id, name))
}

func (s *Postgres) AddMember(ctx context.Context, chatID, userID string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO chat_members (chat_id, user_id) VALUES ($1, $2)
			ON CONFLICT (chat_id, user_id) DO NOTHING
		`, chatID, userID)
		if err != nil {
			return translate(err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		return touchChat(ctx, tx, chatID)
	})
}

func (s *Postgres) RemoveMember(ctx context.Context, chatID, userID string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := lockChat(ctx, tx, chatID); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `DELETE FROM chat_members WHERE chat_id = $1 AND user_id = $2`, chatID, userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		return touchChat(ctx, tx, chatID)
	})
}

func lockChat(ctx context.Context, q querier, chatID string) error {
	var id string
	err := q.QueryRow(ctx, `SELECT id FROM chats WHERE id = $1 FOR UPDATE`, chatID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrChatNotFound
	}
	return err
}

func touchChat(ctx context.Context, q querier, chatID string) error {
	_, err := q.Exec(ctx, `UPDATE chats SET updated_at = NOW() WHERE id = $1`, chatID)
	return err
}

func (s *Postgres) IsMember(ctx context.Context, chatID, userID string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM chat_members WHERE chat_id = $1 AND user_id = $2)
	`, chatID, userID).Scan(&ok)
	return ok, err
}

func (s *Postgres) ListMembers(ctx context.Context, chatID string) ([]models.UserResponse, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT u.id, u.name, u.email, u.pic
		FROM chat_members cm
		INNER JOIN users u ON u.id = cm.user_id
		WHERE cm.chat_id = $1
		ORDER BY cm.joined_at, u.id
	`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]models.UserResponse, 0)
	for rows.Next() {
		var member models.UserResponse
		if err := rows.Scan(&member.ID, &member.Name, &member.Email, &member.Pic); err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

func (s *Postgres) ListUserChats(ctx context.Context, userID string) ([]models.Chat, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+chatColumns+`
		FROM chats c
		INNER JOIN chat_members cm ON cm.chat_id = c.id
		WHERE cm.user_id = $1
		ORDER BY c.updated_at DESC, c.id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chats := make([]models.Chat, 0)
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, *chat)
	}
	return chats, rows.Err()
}
