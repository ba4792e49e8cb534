package messaging_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/databayt/hogwarts-sub013/core"
	"github.com/databayt/hogwarts-sub013/core/messaging"
	"github.com/databayt/hogwarts-sub013/core/user"
	emailsvc "github.com/databayt/hogwarts-sub013/services/email"
	"github.com/databayt/hogwarts-sub013/testutil"
)

var start = time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)

type fixture struct {
	env      *testutil.Env
	teacher  user.User
	guardian user.User
	outsider user.User
	inactive user.User
	foreign  user.User
}

func setup(t *testing.T) fixture {
	t.Helper()
	testutil.FreezeTime(t, start)
	env := testutil.NewEnv(t)
	sch := testutil.CreateSchool(t, env, "Hogwarts", "hogwarts")
	other := testutil.CreateSchool(t, env, "Beauxbatons", "beauxbatons")
	repo := env.UserRepo

	return fixture{
		env:      env,
		teacher:  testutil.CreateUser(t, repo, sch.ID, "Minerva McGonagall", "mcgonagall", "minerva@hogwarts.test", "", []string{user.RoleTeacher}, true),
		guardian: testutil.CreateUser(t, repo, sch.ID, "Molly Weasley", "molly", "molly@burrow.test", "", []string{user.RoleGuardian}, true),
		outsider: testutil.CreateUser(t, repo, sch.ID, "Severus Snape", "snape", "", "", []string{user.RoleTeacher}, true),
		inactive: testutil.CreateUser(t, repo, sch.ID, "Gilderoy Lockhart", "lockhart", "", "", []string{user.RoleTeacher}, false),
		foreign:  testutil.CreateUser(t, repo, other.ID, "Olympe Maxime", "maxime", "", "", []string{user.RoleAdminOwner}, true),
	}
}

func (f fixture) start(t *testing.T) messaging.Conversation {
	t.Helper()
	nc := messaging.NewConversation{
		Subject:        " Ron's homework ",
		ParticipantIDs: []string{f.guardian.ID, f.teacher.ID, f.guardian.ID},
		Body:           "Ron has not handed in his essay.",
	}
	require.NoError(t, nc.Validate())
	conv, err := f.env.Messaging.Start(context.Background(), f.teacher, nc)
	require.NoError(t, err)
	return conv
}

func TestStart(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	conv := f.start(t)

	assert.Equal(t, "Ron's homework", conv.Subject)
	assert.Equal(t, f.teacher.SchoolID, conv.SchoolID)
	require.Len(t, conv.Participants, 2, "creator and duplicates are collapsed")
	assert.True(t, conv.HasParticipant(f.teacher.ID))
	assert.True(t, conv.HasParticipant(f.guardian.ID))
	require.NotNil(t, conv.LastMessage)
	assert.Equal(t, f.teacher.ID, conv.LastMessage.SenderID)

	sent := emailsvc.SentMessages()
	require.Len(t, sent, 1, "only the other participants are notified")
	assert.Equal(t, "molly@burrow.test", sent[0].To[0].Address)
	assert.Equal(t, "New conversation: Ron's homework", sent[0].Subject)
	assert.Contains(t, sent[0].TextContent, "Ron has not handed in his essay.")

	events, err := f.env.Client.XRange(ctx, messaging.EventStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, messaging.EventConversationStarted, events[0].Values["event"])
	assert.Equal(t, conv.ID, events[0].Values["conversation_id"])

	tests := []struct {
		name string
		ids  []string
	}{
		{"only the creator", []string{f.teacher.ID}},
		{"unknown user", []string{"0b6b1c52-1d3c-4a55-9f3e-5f1d6a2f7c11"}},
		{"inactive user", []string{f.inactive.ID}},
		{"user of another school", []string{f.foreign.ID}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			nc := messaging.NewConversation{Subject: "Hello", ParticipantIDs: tc.ids, Body: "Hi"}
			require.NoError(t, nc.Validate())
			_, err := f.env.Messaging.Start(ctx, f.teacher, nc)
			var verr *core.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, "participant_ids", verr.Fields[0].Field)
		})
	}
}

func TestSendAndUnread(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	conv := f.start(t)

	unread := func(usr user.User) int {
		t.Helper()
		convs, err := f.env.Messaging.ListForUser(ctx, usr)
		require.NoError(t, err)
		require.Len(t, convs, 1)
		return convs[0].UnreadCount
	}
	assert.Equal(t, 0, unread(f.teacher))
	assert.Equal(t, 1, unread(f.guardian))

	testutil.FreezeTime(t, start.Add(time.Hour))
	nm := messaging.NewMessage{Body: " I will talk to him. "}
	require.NoError(t, nm.Validate())
	msg, err := f.env.Messaging.Send(ctx, f.guardian, conv.ID, nm)
	require.NoError(t, err)
	assert.Equal(t, "I will talk to him.", msg.Body)

	testutil.FreezeTime(t, start.Add(2*time.Hour))
	nm = messaging.NewMessage{Body: "And Fred and George too."}
	require.NoError(t, nm.Validate())
	_, err = f.env.Messaging.Send(ctx, f.guardian, conv.ID, nm)
	require.NoError(t, err)

	assert.Equal(t, 2, unread(f.teacher))
	assert.Equal(t, 0, unread(f.guardian), "sending marks the conversation read")

	convs, err := f.env.Messaging.ListForUser(ctx, f.teacher)
	require.NoError(t, err)
	require.NotNil(t, convs[0].LastMessage)
	assert.Equal(t, "And Fred and George too.", convs[0].LastMessage.Body)
	assert.Equal(t, start.Add(2*time.Hour), convs[0].UpdatedAt)

	testutil.FreezeTime(t, start.Add(3*time.Hour))
	require.NoError(t, f.env.Messaging.MarkRead(ctx, f.teacher, conv.ID))
	assert.Equal(t, 0, unread(f.teacher))

	messages, err := f.env.Messaging.Messages(ctx, f.teacher, conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "Ron has not handed in his essay.", messages[0].Body)
	assert.Equal(t, "And Fred and George too.", messages[2].Body)

	events, err := f.env.Client.XLen(ctx, messaging.EventStream).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 3, events)
}

func TestNonParticipants(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	conv := f.start(t)

	_, err := f.env.Messaging.Get(ctx, f.outsider, conv.ID)
	assert.ErrorIs(t, err, messaging.ErrNotFound)
	_, err = f.env.Messaging.Messages(ctx, f.outsider, conv.ID)
	assert.ErrorIs(t, err, messaging.ErrNotFound)
	_, err = f.env.Messaging.Send(ctx, f.outsider, conv.ID, messaging.NewMessage{Body: "Ahem."})
	assert.ErrorIs(t, err, messaging.ErrNotFound)
	assert.ErrorIs(t, f.env.Messaging.MarkRead(ctx, f.outsider, conv.ID), messaging.ErrNotFound)

	_, err = f.env.Messaging.Get(ctx, f.foreign, conv.ID)
	assert.True(t, core.IsNotFound(err))

	convs, err := f.env.Messaging.ListForUser(ctx, f.outsider)
	require.NoError(t, err)
	assert.Empty(t, convs)
}
