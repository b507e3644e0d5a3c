package chat

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-dalil/internal/apperror"
	"go-dalil/internal/realtime"
)

// PostgresStore implements Store over PostgreSQL and announces every
// successful write on the change feed.
type PostgresStore struct {
	db     *pgxpool.Pool
	feed   realtime.Publisher
	logger *slog.Logger
}

func NewPostgresStore(db *pgxpool.Pool, feed realtime.Publisher) *PostgresStore {
	return &PostgresStore{db: db, feed: feed, logger: slog.Default()}
}

const conversationSelect = `
	SELECT c.id, c.participant_one, c.participant_two, c.last_message_at, c.created_at,
		p1.id, p1.full_name, p1.avatar_url,
		p2.id, p2.full_name, p2.avatar_url
	FROM conversations c
	JOIN profiles p1 ON p1.id = c.participant_one
	JOIN profiles p2 ON p2.id = c.participant_two`

func scanConversationRow(row pgx.Row) (*ConversationRow, error) {
	r := &ConversationRow{ProfileOne: &Participant{}, ProfileTwo: &Participant{}}
	err := row.Scan(&r.ID, &r.ParticipantOne, &r.ParticipantTwo, &r.LastMessageAt, &r.CreatedAt,
		&r.ProfileOne.ID, &r.ProfileOne.FullName, &r.ProfileOne.AvatarURL,
		&r.ProfileTwo.ID, &r.ProfileTwo.FullName, &r.ProfileTwo.AvatarURL)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *PostgresStore) ListConversations(ctx context.Context, identity string) ([]ConversationRow, error) {
	query := conversationSelect + `
	WHERE c.participant_one = $1 OR c.participant_two = $1
	ORDER BY c.last_message_at DESC, c.id`

	rows, err := s.db.Query(ctx, query, identity)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ConversationRow{}
	for rows.Next() {
		r, err := scanConversationRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetConversation(ctx context.Context, id string) (*ConversationRow, error) {
	r, err := scanConversationRow(s.db.QueryRow(ctx, conversationSelect+` WHERE c.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.ErrNotFound.WithMessage("conversation not found")
	}
	return r, err
}

func (s *PostgresStore) LatestMessage(ctx context.Context, conversationID string) (*LastMessage, error) {
	query := `
		SELECT content, is_read FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	last := &LastMessage{}
	err := s.db.QueryRow(ctx, query, conversationID).Scan(&last.Content, &last.IsRead)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return last, nil
}

const conversationColumns = `id, participant_one, participant_two, last_message_at, created_at`

func scanConversation(row pgx.Row) (*Conversation, error) {
	c := &Conversation{}
	if err := row.Scan(&c.ID, &c.ParticipantOne, &c.ParticipantTwo, &c.LastMessageAt, &c.CreatedAt); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *PostgresStore) FindConversationBetween(ctx context.Context, a, b string) (*Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations
		WHERE (participant_one = $1 AND participant_two = $2)
		   OR (participant_one = $2 AND participant_two = $1)
		LIMIT 1`

	c, err := scanConversation(s.db.QueryRow(ctx, query, a, b))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// CreateConversation relies on the unique index over the normalized pair:
// when a concurrent caller won the insert, the existing row is returned.
func (s *PostgresStore) CreateConversation(ctx context.Context, one, two string, at time.Time) (*Conversation, error) {
	query := `INSERT INTO conversations (participant_one, participant_two, last_message_at, created_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT DO NOTHING
		RETURNING ` + conversationColumns

	c, err := scanConversation(s.db.QueryRow(ctx, query, one, two, at))
	if errors.Is(err, pgx.ErrNoRows) {
		existing, err := s.FindConversationBetween(ctx, one, two)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, errors.New("conversation insert conflicted but no row was found")
		}
		return existing, nil
	}
	if err != nil {
		return nil, err
	}

	s.publish(ctx, realtime.Change{
		Table:    TableConversations,
		Type:     realtime.EventInsert,
		Record:   conversationRecord(c),
		CommitAt: c.CreatedAt,
	})
	return c, nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	query := `
		SELECT m.id, m.conversation_id, m.sender_id, m.content, m.is_read, m.created_at,
			p.full_name, p.avatar_url
		FROM messages m
		JOIN profiles p ON p.id = m.sender_id
		WHERE m.conversation_id = $1
		ORDER BY m.created_at ASC, m.id ASC`

	rows, err := s.db.Query(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		msg := Message{Sender: &Sender{}}
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.IsRead, &msg.CreatedAt,
			&msg.Sender.FullName, &msg.Sender.AvatarURL); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (s *PostgresStore) InsertMessage(ctx context.Context, in NewMessage) (*Message, error) {
	query := `INSERT INTO messages (conversation_id, sender_id, content)
		VALUES ($1, $2, $3)
		RETURNING id, conversation_id, sender_id, content, is_read, created_at`

	msg := &Message{}
	err := s.db.QueryRow(ctx, query, in.ConversationID, in.SenderID, in.Content).
		Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.IsRead, &msg.CreatedAt)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, realtime.Change{
		Table: TableMessages,
		Type:  realtime.EventInsert,
		Record: map[string]any{
			"id":              msg.ID,
			"conversation_id": msg.ConversationID,
			"sender_id":       msg.SenderID,
			"content":         msg.Content,
			"is_read":         msg.IsRead,
			"created_at":      msg.CreatedAt,
		},
		CommitAt: msg.CreatedAt,
	})
	return msg, nil
}

func (s *PostgresStore) TouchConversation(ctx context.Context, conversationID string, at time.Time) (*Conversation, error) {
	query := `UPDATE conversations
		SET last_message_at = GREATEST(last_message_at, $2)
		WHERE id = $1
		RETURNING ` + conversationColumns

	c, err := scanConversation(s.db.QueryRow(ctx, query, conversationID, at))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.ErrNotFound.WithMessage("conversation not found")
	}
	if err != nil {
		return nil, err
	}

	s.publish(ctx, realtime.Change{
		Table:    TableConversations,
		Type:     realtime.EventUpdate,
		Record:   conversationRecord(c),
		CommitAt: at,
	})
	return c, nil
}

// publish announces a committed write. The write already succeeded, so a
// feed failure is logged and not returned.
func (s *PostgresStore) publish(ctx context.Context, c realtime.Change) {
	if s.feed == nil {
		return
	}
	if err := s.feed.Publish(ctx, c); err != nil {
		s.logger.Warn("Failed to publish change", "table", c.Table, "type", c.Type, "error", err)
	}
}

func conversationRecord(c *Conversation) map[string]any {
	return map[string]any{
		"id":              c.ID,
		"participant_one": c.ParticipantOne,
		"participant_two": c.ParticipantTwo,
		"last_message_at": c.LastMessageAt,
		"created_at":      c.CreatedAt,
	}
}
