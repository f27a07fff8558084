package repository

import (
	"context"

	"dance-match-backend/internal/models"
	apperrors "dance-match-backend/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const chatColumns = `chat_id, user_id1, user_id2, last_message, last_message_time, is_active, event_id, match_id, created_at`

type chatRepository struct {
	db *pgxpool.Pool
}

// NewChatRepository creates a new chat repository
func NewChatRepository(db *pgxpool.Pool) ChatRepository {
	return &chatRepository{db: db}
}

func scanChat(row pgx.Row) (*models.Chat, error) {
	var c models.Chat
	err := row.Scan(
		&c.ChatID, &c.Participants[0], &c.Participants[1], &c.LastMessage,
		&c.LastMessageTime, &c.IsActive, &c.EventID, &c.MatchID, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateIfAbsent relies on the primary key and the (user_id1, user_id2)
// unique index, so concurrent creators of one pair persist a single row.
func (r *chatRepository) CreateIfAbsent(ctx context.Context, c *models.Chat) (bool, error) {
	query := `
		INSERT INTO chats (` + chatColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT DO NOTHING
	`
	result, err := r.db.Exec(ctx, query,
		c.ChatID, c.Participants[0], c.Participants[1], c.LastMessage,
		c.LastMessageTime, c.IsActive, c.EventID, c.MatchID, c.CreatedAt,
	)
	if err != nil {
		return false, wrap(err, "failed to create chat")
	}
	return result.RowsAffected() == 1, nil
}

func (r *chatRepository) GetByID(ctx context.Context, chatID string) (*models.Chat, error) {
	query := `SELECT ` + chatColumns + ` FROM chats WHERE chat_id = $1`
	c, err := scanChat(r.db.QueryRow(ctx, query, chatID))
	if err != nil {
		return nil, wrap(err, "failed to get chat")
	}
	return c, nil
}

func (r *chatRepository) SetActive(ctx context.Context, chatID string, active bool) error {
	query := `UPDATE chats SET is_active = $2 WHERE chat_id = $1`
	result, err := r.db.Exec(ctx, query, chatID, active)
	if err != nil {
		return wrap(err, "failed to update chat")
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *chatRepository) ListByUser(ctx context.Context, userID string) ([]*models.Chat, error) {
	query := `
		SELECT ` + chatColumns + `
		FROM chats
		WHERE user_id1 = $1 OR user_id2 = $1
		ORDER BY created_at DESC, chat_id
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, wrap(err, "failed to list chats")
	}
	defer rows.Close()

	var chats []*models.Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, wrap(err, "failed to scan chat")
		}
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(err, "error iterating chats")
	}
	return chats, nil
}
