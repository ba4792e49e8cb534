package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/databayt/hogwarts-sub013/core"
	"github.com/databayt/hogwarts-sub013/core/messaging"
)

type messagingRepository struct {
	db *DB
}

var _ messaging.Repository = (*messagingRepository)(nil)

func NewMessagingRepository(db *DB) *messagingRepository {
	return &messagingRepository{db: db}
}

func memberKey(conversationID, userID string) string {
	return conversationID + "/" + userID
}

func (repo *messagingRepository) CreateConversation(_ context.Context, c messaging.Conversation, _ ...core.DBExecutor) (messaging.Conversation, error) {
	repo.db.convo.Lock()
	defer repo.db.convo.Unlock()
	c.ID = newID()
	stored := c
	stored.Participants = nil
	repo.db.convo.rows[c.ID] = &stored
	return c, nil
}

func (repo *messagingRepository) AddParticipants(_ context.Context, conversationID string, participants []messaging.Participant, _ ...core.DBExecutor) error {
	repo.db.members.Lock()
	defer repo.db.members.Unlock()
	for _, p := range participants {
		key := memberKey(conversationID, p.UserID)
		if _, ok := repo.db.members.rows[key]; ok {
			continue // ON CONFLICT DO NOTHING
		}
		repo.db.members.rows[key] = &member{ConversationID: conversationID, Participant: p}
	}
	return nil
}

// participants must be called with the members lock held.
func (repo *messagingRepository) participants(conversationID string) []messaging.Participant {
	repo.db.user.RLock()
	defer repo.db.user.RUnlock()

	var parts []messaging.Participant
	for _, m := range repo.db.members.rows {
		if m.ConversationID != conversationID {
			continue
		}
		p := m.Participant
		if usr, ok := repo.db.user.rows[p.UserID]; ok {
			p.Name = usr.Name
		}
		parts = append(parts, p)
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].Name < parts[j].Name })
	return parts
}

func (repo *messagingRepository) GetConversation(_ context.Context, schoolID, id string, _ ...core.DBExecutor) (messaging.Conversation, error) {
	repo.db.convo.RLock()
	c, ok := repo.db.convo.rows[id]
	repo.db.convo.RUnlock()
	if !ok || c.SchoolID != schoolID {
		return messaging.Conversation{}, messaging.ErrNotFound
	}

	conv := *c
	repo.db.members.RLock()
	conv.Participants = repo.participants(id)
	repo.db.members.RUnlock()
	return conv, nil
}

func (repo *messagingRepository) QueryConversations(_ context.Context, schoolID, userID string, _ ...core.DBExecutor) ([]messaging.Conversation, error) {
	repo.db.members.RLock()
	lastRead := make(map[string]*time.Time)
	for _, m := range repo.db.members.rows {
		if m.UserID == userID {
			lastRead[m.ConversationID] = m.LastReadAt
		}
	}
	repo.db.members.RUnlock()

	repo.db.convo.RLock()
	convs := repo.db.convo.all(func(c messaging.Conversation) bool {
		_, ok := lastRead[c.ID]
		return ok && c.SchoolID == schoolID
	})
	repo.db.convo.RUnlock()

	repo.db.message.RLock()
	defer repo.db.message.RUnlock()
	for i := range convs {
		c := &convs[i]
		for _, m := range repo.db.message.rows {
			if m.ConversationID != c.ID {
				continue
			}
			if c.LastMessage == nil || m.CreatedAt.After(c.LastMessage.CreatedAt) {
				msg := *m
				c.LastMessage = &msg
			}
			if lr := lastRead[c.ID]; m.SenderID != userID && (lr == nil || m.CreatedAt.After(*lr)) {
				c.UnreadCount++
			}
		}
	}
	sort.Slice(convs, func(i, j int) bool { return convs[i].UpdatedAt.After(convs[j].UpdatedAt) })
	return convs, nil
}

func (repo *messagingRepository) TouchConversation(_ context.Context, id string, at time.Time, _ ...core.DBExecutor) error {
	repo.db.convo.Lock()
	defer repo.db.convo.Unlock()
	c, ok := repo.db.convo.rows[id]
	if !ok {
		return messaging.ErrNotFound
	}
	c.UpdatedAt = at
	return nil
}

func (repo *messagingRepository) CreateMessage(_ context.Context, m messaging.Message, _ ...core.DBExecutor) (messaging.Message, error) {
	repo.db.message.Lock()
	defer repo.db.message.Unlock()
	m.ID = newID()
	repo.db.message.rows[m.ID] = &m
	return m, nil
}

func (repo *messagingRepository) QueryMessages(_ context.Context, schoolID, conversationID string, _ ...core.DBExecutor) ([]messaging.Message, error) {
	repo.db.message.RLock()
	defer repo.db.message.RUnlock()
	msgs := repo.db.message.all(func(m messaging.Message) bool {
		return m.SchoolID == schoolID && m.ConversationID == conversationID
	})
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })
	return msgs, nil
}

func (repo *messagingRepository) SetLastRead(_ context.Context, conversationID, userID string, at time.Time, _ ...core.DBExecutor) error {
	repo.db.members.Lock()
	defer repo.db.members.Unlock()
	m, ok := repo.db.members.rows[memberKey(conversationID, userID)]
	if !ok {
		return messaging.ErrNotFound
	}
	m.LastReadAt = &at
	return nil
}
