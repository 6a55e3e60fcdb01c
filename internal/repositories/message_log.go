package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/jmoiron/sqlx"

	"thread-sync/internal/models"
)

var (
	ErrThreadNotFound  = errors.New("thread not found")
	ErrMessageNotFound = errors.New("message not found")
)

// FetchRequest describes one paginated read against a thread's log. At most
// one of After, Before, Around may be set; all nil means the newest page.
type FetchRequest struct {
	ThreadID int
	Limit    int
	After    *int
	Before   *int
	Around   *int
}

// PostRequest carries an authored message to the log. ClientToken is the
// caller-chosen temporary-id correlation token; reposting the same token
// returns the originally persisted row instead of a duplicate.
type PostRequest struct {
	ThreadID    int
	AuthorID    int
	Body        string
	ParentID    *int
	MentionIDs  []int
	ClientToken int64
}

// MessageLog is the remote message log consumed by the sync engine. Fetches
// return messages ordered newest first; the engine reverses them.
type MessageLog interface {
	FetchMessages(ctx context.Context, req FetchRequest) ([]models.Message, error)
	PostMessage(ctx context.Context, req PostRequest) (models.Message, error)
	MarkRead(ctx context.Context, threadID int, userID int, lastMessageID int) error
	MarkAllRead(ctx context.Context, threadID int, userID int) error
	ListMembers(ctx context.Context, threadID int) ([]models.ThreadMember, error)
}

// MessageLogRepo is a sqlx-backed MessageLog.
type MessageLogRepo struct {
	db *sqlx.DB
}

// NewMessageLogRepo constructs MessageLogRepo.
func NewMessageLogRepo(db *sqlx.DB) *MessageLogRepo {
	return &MessageLogRepo{db: db}
}

const messageColumns = `id, thread_id, author_id, body, parent_id, needaction, created_at`

// FetchMessages returns one page of the thread's log, newest first.
func (r *MessageLogRepo) FetchMessages(ctx context.Context, req FetchRequest) ([]models.Message, error) {
	var (
		msgs []models.Message
		err  error
	)
	switch {
	case req.After != nil:
		// The page immediately after the anchor, so ascending first.
		err = r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
            WHERE thread_id=$1 AND id > $2 ORDER BY id ASC LIMIT $3`, req.ThreadID, *req.After, req.Limit)
		reverseMessages(msgs)
	case req.Before != nil:
		err = r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
            WHERE thread_id=$1 AND id < $2 ORDER BY id DESC LIMIT $3`, req.ThreadID, *req.Before, req.Limit)
	case req.Around != nil:
		msgs, err = r.fetchAround(ctx, req.ThreadID, *req.Around, req.Limit)
	default:
		err = r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
            WHERE thread_id=$1 ORDER BY id DESC LIMIT $2`, req.ThreadID, req.Limit)
	}
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		msgs[i].Status = models.MessagePersisted
	}
	return msgs, nil
}

func (r *MessageLogRepo) fetchAround(ctx context.Context, threadID, target, limit int) ([]models.Message, error) {
	half := limit / 2
	var older, newer []models.Message
	if err := r.db.SelectContext(ctx, &older, `SELECT `+messageColumns+` FROM messages
        WHERE thread_id=$1 AND id <= $2 ORDER BY id DESC LIMIT $3`, threadID, target, half); err != nil {
		return nil, err
	}
	if err := r.db.SelectContext(ctx, &newer, `SELECT `+messageColumns+` FROM messages
        WHERE thread_id=$1 AND id > $2 ORDER BY id ASC LIMIT $3`, threadID, target, half); err != nil {
		return nil, err
	}
	msgs := append(older, newer...)
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID > msgs[j].ID })
	return msgs, nil
}

// PostMessage persists an authored message. A repeated client token returns
// the row persisted by the first attempt.
func (r *MessageLogRepo) PostMessage(ctx context.Context, req PostRequest) (models.Message, error) {
	var token sql.NullInt64
	if req.ClientToken != 0 {
		token = sql.NullInt64{Int64: req.ClientToken, Valid: true}
	}

	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (thread_id, author_id, body, parent_id, client_token)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (thread_id, client_token) DO UPDATE SET client_token = messages.client_token
        RETURNING `+messageColumns, req.ThreadID, req.AuthorID, req.Body, req.ParentID, token).
		StructScan(&msg)
	if err != nil {
		return models.Message{}, err
	}
	msg.Status = models.MessagePersisted
	msg.MentionIDs = req.MentionIDs

	if len(req.MentionIDs) > 0 {
		for _, userID := range req.MentionIDs {
			if _, err := r.db.ExecContext(ctx, `UPDATE thread_members SET needaction_count = needaction_count + 1
                WHERE thread_id=$1 AND user_id=$2`, req.ThreadID, userID); err != nil {
				return msg, err
			}
		}
	}
	return msg, nil
}

// MarkRead advances the member's seen watermark. A missing thread reports
// ErrThreadNotFound so callers can tolerate concurrent deletion.
func (r *MessageLogRepo) MarkRead(ctx context.Context, threadID int, userID int, lastMessageID int) error {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM threads WHERE id=$1)`, threadID); err != nil {
		return err
	}
	if !exists {
		return ErrThreadNotFound
	}

	_, err := r.db.ExecContext(ctx, `INSERT INTO thread_members (thread_id, user_id, seen_message_id)
        VALUES ($1, $2, $3)
        ON CONFLICT (thread_id, user_id) DO UPDATE SET seen_message_id = GREATEST(thread_members.seen_message_id, EXCLUDED.seen_message_id)`,
		threadID, userID, lastMessageID)
	return err
}

// MarkAllRead clears the member's needaction counter in bulk.
func (r *MessageLogRepo) MarkAllRead(ctx context.Context, threadID int, userID int) error {
	res, err := r.db.ExecContext(ctx, `UPDATE thread_members SET needaction_count = 0
        WHERE thread_id=$1 AND user_id=$2`, threadID, userID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrThreadNotFound
	}
	return nil
}

// ListMembers returns the thread's members with their seen watermarks.
func (r *MessageLogRepo) ListMembers(ctx context.Context, threadID int) ([]models.ThreadMember, error) {
	var members []models.ThreadMember
	err := r.db.SelectContext(ctx, &members, `SELECT thread_id, user_id, seen_message_id, needaction_count, joined_at
        FROM thread_members WHERE thread_id=$1 ORDER BY user_id ASC`, threadID)
	return members, err
}

func reverseMessages(msgs []models.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
