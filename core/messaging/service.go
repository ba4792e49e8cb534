package messaging

import (
	"context"
	"net/mail"
	"time"

	"github.com/kat-co/vala"

	"github.com/databayt/hogwarts-sub013/core"
	"github.com/databayt/hogwarts-sub013/core/user"
)

const EventStream = "messaging:events"

// Event types
const (
	EventConversationStarted = "conversation.started"
	EventMessageSent         = "message.sent"
)

var (
	// errors
	ErrNotFound = core.NewNotFoundError("conversation")

	noOtherParticipantText = "at least one other participant is required"
	unknownParticipantText = "participant not found"
)

type (
	Repository interface {
		CreateConversation(ctx context.Context, c Conversation, exec ...core.DBExecutor) (Conversation, error)
		AddParticipants(ctx context.Context, conversationID string, participants []Participant, exec ...core.DBExecutor) error
		// GetConversation returns the conversation with its participants.
		GetConversation(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (Conversation, error)
		// QueryConversations lists the conversations of a participant, most recently active first,
		// with the number of messages from others since the participant's last read.
		QueryConversations(ctx context.Context, schoolID, userID string, exec ...core.DBExecutor) ([]Conversation, error)
		TouchConversation(ctx context.Context, id string, at time.Time, exec ...core.DBExecutor) error
		CreateMessage(ctx context.Context, m Message, exec ...core.DBExecutor) (Message, error)
		// QueryMessages lists the messages of a conversation, oldest first.
		QueryMessages(ctx context.Context, schoolID, conversationID string, exec ...core.DBExecutor) ([]Message, error)
		SetLastRead(ctx context.Context, conversationID, userID string, at time.Time, exec ...core.DBExecutor) error
	}

	UserGetter interface {
		GetByID(ctx context.Context, schoolID, id string) (user.User, error)
	}

	Service struct {
		repo    Repository
		users   UserGetter
		tx      core.Transactor
		events  core.EventPublisher
		mailSvc core.EmailService
		logger  core.Logger
	}
)

func NewService(
	repo Repository,
	users UserGetter,
	tx core.Transactor,
	events core.EventPublisher,
	mailSvc core.EmailService,
	logger core.Logger,
) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(users, "users"),
		vala.IsNotNil(tx, "tx"),
		vala.IsNotNil(events, "events"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &Service{repo: repo, users: users, tx: tx, events: events, mailSvc: mailSvc, logger: logger}
}

func (svc *Service) publish(ctx context.Context, event string, m Message) {
	err := svc.events.Publish(ctx, EventStream, map[string]interface{}{
		"event":           event,
		"school_id":       m.SchoolID,
		"conversation_id": m.ConversationID,
		"message_id":      m.ID,
		"sender_id":       m.SenderID,
		"created_at":      m.CreatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		svc.logger.Warn("publishing messaging event", err, map[string]interface{}{"event": event})
	}
}

// Start opens a conversation between the creator and at least one other user of the same school,
// with a first message. Other participants are notified by email.
func (svc *Service) Start(ctx context.Context, creator user.User, nc NewConversation) (Conversation, error) {
	ids := make([]string, 0, len(nc.ParticipantIDs))
	for _, id := range core.UniqueStrings(nc.ParticipantIDs) {
		if id != creator.ID {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return Conversation{}, core.NewFieldError("participant_ids", noOtherParticipantText)
	}

	others := make([]user.User, 0, len(ids))
	for _, id := range ids {
		usr, err := svc.users.GetByID(ctx, creator.SchoolID, id)
		if err != nil {
			if core.IsNotFound(err) {
				return Conversation{}, core.NewFieldError("participant_ids", unknownParticipantText)
			}
			return Conversation{}, err
		}
		if !usr.IsActive {
			return Conversation{}, core.NewFieldError("participant_ids", unknownParticipantText)
		}
		others = append(others, usr)
	}

	now := core.NowFunc()
	var (
		conv Conversation
		msg  Message
	)
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		var err error
		conv, err = svc.repo.CreateConversation(ctx, Conversation{
			SchoolID:  creator.SchoolID,
			Subject:   nc.Subject,
			CreatedBy: creator.ID,
			CreatedAt: now,
			UpdatedAt: now,
		}, exec)
		if err != nil {
			return err
		}

		participants := make([]Participant, 0, len(others)+1)
		participants = append(participants, Participant{UserID: creator.ID, Name: creator.Name, LastReadAt: &now})
		for _, usr := range others {
			participants = append(participants, Participant{UserID: usr.ID, Name: usr.Name})
		}
		if err = svc.repo.AddParticipants(ctx, conv.ID, participants, exec); err != nil {
			return err
		}
		conv.Participants = participants

		msg, err = svc.repo.CreateMessage(ctx, Message{
			SchoolID:       creator.SchoolID,
			ConversationID: conv.ID,
			SenderID:       creator.ID,
			Body:           nc.Body,
			CreatedAt:      now,
		}, exec)
		return err
	})
	if err != nil {
		return Conversation{}, err
	}
	conv.LastMessage = &msg

	svc.publish(ctx, EventConversationStarted, msg)
	svc.notify(creator, others, conv, msg)
	return conv, nil
}

func (svc *Service) notify(sender user.User, recipients []user.User, conv Conversation, msg Message) {
	messages := make([]*core.EmailMessage, 0, len(recipients))
	for _, usr := range recipients {
		if usr.Email == "" {
			continue
		}
		messages = append(messages, &core.EmailMessage{
			To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
			Subject:      "New conversation: " + conv.Subject,
			TemplateName: "new_conversation",
			TemplateData: map[string]string{
				"RecipientName":  usr.Name,
				"SenderName":     sender.Name,
				"Subject":        conv.Subject,
				"Preview":        preview(msg.Body),
				"ConversationID": conv.ID,
			},
		})
	}
	if len(messages) > 0 {
		svc.mailSvc.SendMessages(messages...)
	}
}

// ListForUser lists the conversations of a user with their unread counts.
func (svc *Service) ListForUser(ctx context.Context, usr user.User) ([]Conversation, error) {
	return svc.repo.QueryConversations(ctx, usr.SchoolID, usr.ID)
}

// Get returns a conversation the user participates in. Others look like they do not exist.
func (svc *Service) Get(ctx context.Context, usr user.User, id string) (Conversation, error) {
	conv, err := svc.repo.GetConversation(ctx, usr.SchoolID, id)
	if err != nil {
		return Conversation{}, err
	}
	if !conv.HasParticipant(usr.ID) {
		return Conversation{}, ErrNotFound
	}
	return conv, nil
}

func (svc *Service) Messages(ctx context.Context, usr user.User, conversationID string) ([]Message, error) {
	if _, err := svc.Get(ctx, usr, conversationID); err != nil {
		return nil, err
	}
	return svc.repo.QueryMessages(ctx, usr.SchoolID, conversationID)
}

// Send posts a message; the sender's read marker moves past it.
func (svc *Service) Send(ctx context.Context, sender user.User, conversationID string, nm NewMessage) (Message, error) {
	if _, err := svc.Get(ctx, sender, conversationID); err != nil {
		return Message{}, err
	}

	now := core.NowFunc()
	var msg Message
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		var err error
		msg, err = svc.repo.CreateMessage(ctx, Message{
			SchoolID:       sender.SchoolID,
			ConversationID: conversationID,
			SenderID:       sender.ID,
			Body:           nm.Body,
			CreatedAt:      now,
		}, exec)
		if err != nil {
			return err
		}
		if err = svc.repo.TouchConversation(ctx, conversationID, now, exec); err != nil {
			return err
		}
		return svc.repo.SetLastRead(ctx, conversationID, sender.ID, now, exec)
	})
	if err != nil {
		return Message{}, err
	}
	svc.publish(ctx, EventMessageSent, msg)
	return msg, nil
}

func (svc *Service) MarkRead(ctx context.Context, usr user.User, conversationID string) error {
	if _, err := svc.Get(ctx, usr, conversationID); err != nil {
		return err
	}
	return svc.repo.SetLastRead(ctx, conversationID, usr.ID, core.NowFunc())
}
