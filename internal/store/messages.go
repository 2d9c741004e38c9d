package store

import (
	"context"
	"errors"

	"chatrelay/server/internal/models"

	"github.com/jackc/pgx/v5"
)

const messageColumns = "m.id, m.chat_id, m.content, m.created_at, u.id, u.name, u.email, u.pic"

func scanMessage(row pgx.Row) (*models.MessageWithSender, error) {
	var msg models.MessageWithSender
	err := row.Scan(
		&msg.ID, &msg.ChatID, &msg.Content, &msg.CreatedAt,
		&msg.Sender.ID, &msg.Sender.Name, &msg.Sender.Email, &msg.Sender.Pic,
	)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *Postgres) AppendMessage(ctx context.Context, chatID, senderID, content string) (*models.Message, error) {
	var msg models.Message
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO messages (chat_id, sender_id, content)
			VALUES ($1, $2, $3)
			RETURNING id, chat_id, sender_id, content, created_at
		`, chatID, senderID, content).
			Scan(&msg.ID, &msg.ChatID, &msg.SenderID, &msg.Content, &msg.CreatedAt)
		if err != nil {
			return translate(err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE chats SET updated_at = GREATEST(updated_at, $2) WHERE id = $1
		`, chatID, msg.CreatedAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *Postgres) LatestMessage(ctx context.Context, chatID string) (*models.MessageWithSender, error) {
	msg, err := scanMessage(s.pool.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		INNER JOIN users u ON u.id = m.sender_id
		WHERE m.chat_id = $1
		ORDER BY m.created_at DESC, m.seq DESC
		LIMIT 1
	`, chatID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return msg, err
}

// ListMessages returns newest first.
func (s *Postgres) ListMessages(ctx context.Context, chatID string, limit, offset int) ([]models.MessageWithSender, error) {
	query, args, err := s.sb.Select(messageColumns).
		From("messages m").
		InnerJoin("users u ON u.id = m.sender_id").
		Where("m.chat_id = ?", chatID).
		OrderBy("m.created_at DESC", "m.seq DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.MessageWithSender, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}
