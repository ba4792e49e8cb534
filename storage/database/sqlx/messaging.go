package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/databayt/hogwarts-sub013/core"
	"github.com/databayt/hogwarts-sub013/core/messaging"
)

const (
	conversationTable = "conversation"
	participantTable  = "conversation_participant"
	messageTable      = "message"
)

var (
	conversationColumns = []string{"id", "school_id", "subject", "created_by", "created_at", "updated_at"}
	messageColumns      = []string{"id", "school_id", "conversation_id", "sender_id", "body", "created_at"}
)

type conversationRow struct {
	ID          string    `db:"id"`
	SchoolID    string    `db:"school_id"`
	Subject     string    `db:"subject"`
	CreatedBy   string    `db:"created_by"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
	UnreadCount int       `db:"unread_count"`
}

func (r conversationRow) unboil() messaging.Conversation {
	return messaging.Conversation{
		ID:          r.ID,
		SchoolID:    r.SchoolID,
		Subject:     r.Subject,
		CreatedBy:   r.CreatedBy,
		UnreadCount: r.UnreadCount,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type participantRow struct {
	UserID     string    `db:"user_id"`
	Name       string    `db:"name"`
	LastReadAt null.Time `db:"last_read_at"`
}

type messageRow struct {
	ID             string    `db:"id"`
	SchoolID       string    `db:"school_id"`
	ConversationID string    `db:"conversation_id"`
	SenderID       string    `db:"sender_id"`
	Body           string    `db:"body"`
	CreatedAt      time.Time `db:"created_at"`
}

func (r messageRow) unboil() messaging.Message {
	return messaging.Message{
		ID:             r.ID,
		SchoolID:       r.SchoolID,
		ConversationID: r.ConversationID,
		SenderID:       r.SenderID,
		Body:           r.Body,
		CreatedAt:      r.CreatedAt.UTC(),
	}
}

type messagingRepository struct {
	repository
}

var _ messaging.Repository = (*messagingRepository)(nil) // interface compliance check

func NewMessagingRepository(exec core.DBExecutor) *messagingRepository {
	return &messagingRepository{repository{exec: exec}}
}

func (repo messagingRepository) CreateConversation(ctx context.Context, c messaging.Conversation, exec ...core.DBExecutor) (messaging.Conversation, error) {
	c.ID = newID()
	b := psql.Insert(conversationTable).Columns(conversationColumns...).Values(
		c.ID, c.SchoolID, c.Subject, c.CreatedBy, c.CreatedAt.UTC(), c.UpdatedAt.UTC(),
	)
	if _, err := repo.execute(ctx, exec, b); err != nil {
		return messaging.Conversation{}, errors.Wrap(err, "inserting conversation")
	}
	return c, nil
}

func (repo messagingRepository) AddParticipants(ctx context.Context, conversationID string, participants []messaging.Participant, exec ...core.DBExecutor) error {
	if len(participants) == 0 {
		return nil
	}
	b := psql.Insert(participantTable).Columns("conversation_id", "user_id", "last_read_at")
	for _, p := range participants {
		b = b.Values(conversationID, p.UserID, nullTimePtr(p.LastReadAt))
	}
	b = b.Suffix("ON CONFLICT (conversation_id, user_id) DO NOTHING")
	if _, err := repo.execute(ctx, exec, b); err != nil {
		return errors.Wrap(err, "inserting participants")
	}
	return nil
}

func (repo messagingRepository) participants(ctx context.Context, conversationID string, exec []core.DBExecutor) ([]messaging.Participant, error) {
	b := psql.Select("p.user_id", "u.name", "p.last_read_at").
		From(participantTable + " p").
		Join(userTable + " u ON u.id = p.user_id").
		Where("p.conversation_id = ?", conversationID).
		OrderBy("u.name ASC")

	var rows []participantRow
	if err := repo.selectAll(ctx, exec, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying participants")
	}
	parts := make([]messaging.Participant, 0, len(rows))
	for _, r := range rows {
		parts = append(parts, messaging.Participant{UserID: r.UserID, Name: r.Name, LastReadAt: timePtr(r.LastReadAt)})
	}
	return parts, nil
}

func (repo messagingRepository) GetConversation(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (messaging.Conversation, error) {
	if !validID(schoolID) || !validID(id) {
		return messaging.Conversation{}, messaging.ErrNotFound
	}
	b := psql.Select(conversationColumns...).Column("0 AS unread_count").
		From(conversationTable).
		Where(sq.Eq{"id": id, "school_id": schoolID})

	var row conversationRow
	if err := repo.get(ctx, exec, &row, b); err != nil {
		return messaging.Conversation{}, trapNoRowsErr(err, messaging.ErrNotFound, "finding conversation")
	}
	conv := row.unboil()

	var err error
	if conv.Participants, err = repo.participants(ctx, id, exec); err != nil {
		return messaging.Conversation{}, err
	}
	return conv, nil
}

func (repo messagingRepository) QueryConversations(ctx context.Context, schoolID, userID string, exec ...core.DBExecutor) ([]messaging.Conversation, error) {
	if !validID(schoolID) || !validID(userID) {
		return []messaging.Conversation{}, nil
	}
	unread := sq.Expr(
		"(SELECT COUNT(*) FROM "+messageTable+" m WHERE m.conversation_id = c.id AND m.sender_id <> ? "+
			"AND (p.last_read_at IS NULL OR m.created_at > p.last_read_at)) AS unread_count",
		userID,
	)
	b := psql.Select("c.id", "c.school_id", "c.subject", "c.created_by", "c.created_at", "c.updated_at").
		Column(unread).
		From(conversationTable+" c").
		Join(participantTable+" p ON p.conversation_id = c.id AND p.user_id = ?", userID).
		Where("c.school_id = ?", schoolID).
		OrderBy("c.updated_at DESC")

	var rows []conversationRow
	if err := repo.selectAll(ctx, exec, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying conversations")
	}
	if len(rows) == 0 {
		return []messaging.Conversation{}, nil
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	last, err := repo.lastMessages(ctx, ids, exec)
	if err != nil {
		return nil, err
	}

	convs := make([]messaging.Conversation, 0, len(rows))
	for _, r := range rows {
		conv := r.unboil()
		if m, ok := last[conv.ID]; ok {
			conv.LastMessage = &m
		}
		convs = append(convs, conv)
	}
	return convs, nil
}

func (repo messagingRepository) lastMessages(ctx context.Context, conversationIDs []string, exec []core.DBExecutor) (map[string]messaging.Message, error) {
	b := psql.Select(messageColumns...).
		Options("DISTINCT ON (conversation_id)").
		From(messageTable).
		Where(sq.Eq{"conversation_id": conversationIDs}).
		OrderBy("conversation_id", "created_at DESC")

	var rows []messageRow
	if err := repo.selectAll(ctx, exec, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying last messages")
	}
	last := make(map[string]messaging.Message, len(rows))
	for _, r := range rows {
		last[r.ConversationID] = r.unboil()
	}
	return last, nil
}

func (repo messagingRepository) TouchConversation(ctx context.Context, id string, at time.Time, exec ...core.DBExecutor) error {
	if !validID(id) {
		return messaging.ErrNotFound
	}
	b := psql.Update(conversationTable).Set("updated_at", at.UTC()).Where("id = ?", id)
	return repo.mustAffect(ctx, exec, b, messaging.ErrNotFound, "touching conversation")
}

func (repo messagingRepository) CreateMessage(ctx context.Context, m messaging.Message, exec ...core.DBExecutor) (messaging.Message, error) {
	m.ID = newID()
	b := psql.Insert(messageTable).Columns(messageColumns...).Values(
		m.ID, m.SchoolID, m.ConversationID, m.SenderID, m.Body, m.CreatedAt.UTC(),
	)
	if _, err := repo.execute(ctx, exec, b); err != nil {
		return messaging.Message{}, errors.Wrap(err, "inserting message")
	}
	return m, nil
}

func (repo messagingRepository) QueryMessages(ctx context.Context, schoolID, conversationID string, exec ...core.DBExecutor) ([]messaging.Message, error) {
	if !validID(schoolID) || !validID(conversationID) {
		return []messaging.Message{}, nil
	}
	b := psql.Select(messageColumns...).From(messageTable).
		Where(sq.Eq{"school_id": schoolID, "conversation_id": conversationID}).
		OrderBy("created_at ASC")

	var rows []messageRow
	if err := repo.selectAll(ctx, exec, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying messages")
	}
	msgs := make([]messaging.Message, 0, len(rows))
	for _, r := range rows {
		msgs = append(msgs, r.unboil())
	}
	return msgs, nil
}

func (repo messagingRepository) SetLastRead(ctx context.Context, conversationID, userID string, at time.Time, exec ...core.DBExecutor) error {
	if !validID(conversationID) || !validID(userID) {
		return messaging.ErrNotFound
	}
	b := psql.Update(participantTable).
		Set("last_read_at", at.UTC()).
		Where(sq.Eq{"conversation_id": conversationID, "user_id": userID})
	return repo.mustAffect(ctx, exec, b, messaging.ErrNotFound, "marking conversation read")
}
