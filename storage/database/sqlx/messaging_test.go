package sqlxrepos

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/databayt/hogwarts-sub013/core/messaging"
)

const (
	convA = "1a1a1a1a-1a1a-4a1a-8a1a-1a1a1a1a1a1a"
	convB = "2b2b2b2b-2b2b-4b2b-8b2b-2b2b2b2b2b2b"
)

func TestMessagingRepository_QueryConversations(t *testing.T) {
	db, mock := newMock(t)
	convCols := []string{"id", "school_id", "subject", "created_by", "created_at", "updated_at", "unread_count"}

	mock.ExpectQuery(q(`SELECT c.id, c.school_id, c.subject, c.created_by, c.created_at, c.updated_at, (SELECT COUNT(*) FROM message m WHERE m.conversation_id = c.id AND m.sender_id <> $1 AND (p.last_read_at IS NULL OR m.created_at > p.last_read_at)) AS unread_count FROM conversation c JOIN conversation_participant p ON p.conversation_id = c.id AND p.user_id = $2 WHERE c.school_id = $3 ORDER BY c.updated_at DESC`)).
		WithArgs(otherID, otherID, schoolID).
		WillReturnRows(sqlmock.NewRows(convCols).
			AddRow(convA, schoolID, "Quidditch practice", otherID, now, now, 3).
			AddRow(convB, schoolID, "Homework", studentID, now, now, 0))
	mock.ExpectQuery(q(`SELECT DISTINCT ON (conversation_id) id, school_id, conversation_id, sender_id, body, created_at FROM message WHERE conversation_id IN ($1,$2) ORDER BY conversation_id, created_at DESC`)).
		WithArgs(convA, convB).
		WillReturnRows(sqlmock.NewRows(messageColumns).AddRow(studentID, schoolID, convA, studentID, "See you at 5", now))

	convs, err := NewMessagingRepository(db).QueryConversations(context.Background(), schoolID, otherID)
	require.NoError(t, err)
	require.Len(t, convs, 2)

	assert.Equal(t, 3, convs[0].UnreadCount)
	require.NotNil(t, convs[0].LastMessage)
	assert.Equal(t, "See you at 5", convs[0].LastMessage.Body)
	assert.Nil(t, convs[1].LastMessage)
}

func TestMessagingRepository_QueryConversationsEmpty(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(q(`FROM conversation c JOIN conversation_participant p`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	convs, err := NewMessagingRepository(db).QueryConversations(context.Background(), schoolID, otherID)
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestMessagingRepository_GetConversation(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(q(`SELECT id, school_id, subject, created_by, created_at, updated_at, 0 AS unread_count FROM conversation WHERE id = $1 AND school_id = $2`)).
		WithArgs(convA, schoolID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "school_id", "subject", "created_by", "created_at", "updated_at", "unread_count"}).
			AddRow(convA, schoolID, "Quidditch practice", otherID, now, now, 0))
	mock.ExpectQuery(q(`SELECT p.user_id, u.name, p.last_read_at FROM conversation_participant p JOIN "user" u ON u.id = p.user_id WHERE p.conversation_id = $1 ORDER BY u.name ASC`)).
		WithArgs(convA).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "name", "last_read_at"}).
			AddRow(otherID, "Oliver Wood", now).
			AddRow(studentID, "Harry Potter", nil))

	conv, err := NewMessagingRepository(db).GetConversation(context.Background(), schoolID, convA)
	require.NoError(t, err)
	require.Len(t, conv.Participants, 2)
	require.NotNil(t, conv.Participants[0].LastReadAt)
	assert.Equal(t, now, *conv.Participants[0].LastReadAt)
	assert.Nil(t, conv.Participants[1].LastReadAt)
}

func TestMessagingRepository_AddParticipants(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec(q(`INSERT INTO conversation_participant (conversation_id,user_id,last_read_at) VALUES ($1,$2,$3),($4,$5,$6) ON CONFLICT (conversation_id, user_id) DO NOTHING`)).
		WithArgs(convA, otherID, now, convA, studentID, nil).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := NewMessagingRepository(db).AddParticipants(context.Background(), convA, []messaging.Participant{
		{UserID: otherID, LastReadAt: &now},
		{UserID: studentID},
	})
	require.NoError(t, err)
}

func TestMessagingRepository_SetLastRead(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec(q(`UPDATE conversation_participant SET last_read_at = $1 WHERE conversation_id = $2 AND user_id = $3`)).
		WithArgs(now, convA, studentID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewMessagingRepository(db).SetLastRead(context.Background(), convA, studentID, now)
	assert.ErrorIs(t, err, messaging.ErrNotFound)
}
