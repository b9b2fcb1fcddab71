package repositories

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"letmaster-backend/internal/models"
)

type UserMessageRepository struct {
	DB *pgxpool.Pool
}

func NewUserMessageRepository(db *pgxpool.Pool) *UserMessageRepository {
	return &UserMessageRepository{DB: db}
}

func (r *UserMessageRepository) Create(ctx context.Context, m *models.UserMessage) error {
	return r.DB.QueryRow(ctx,
		`INSERT INTO user_messages(message_mode, message_recipient, message_subject, message_body, delivered)
         VALUES($1, $2, $3, $4, $5)
         RETURNING id, created_at`,
		m.MessageMode, m.MessageRecipient, m.MessageSubject, m.MessageBody, m.Delivered,
	).Scan(&m.ID, &m.CreatedAt)
}

func (r *UserMessageRepository) List(ctx context.Context, limit int) ([]*models.UserMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.Query(ctx,
		`SELECT id, message_mode, message_recipient, COALESCE(message_subject, ''), message_body, delivered, created_at
         FROM user_messages ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.UserMessage
	for rows.Next() {
		var m models.UserMessage
		err := rows.Scan(&m.ID, &m.MessageMode, &m.MessageRecipient, &m.MessageSubject, &m.MessageBody, &m.Delivered, &m.CreatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
