package core

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmailMessage_Render(t *testing.T) {
	t.Run("plain body", func(t *testing.T) {
		msg := &EmailMessage{BodyStr: "hello"}
		require.NoError(t, msg.Render())
		assert.Equal(t, "hello", msg.TextContent)
		assert.Empty(t, msg.HTMLContent)
	})

	t.Run("template", func(t *testing.T) {
		msg := &EmailMessage{
			TemplateName: "password_reset",
			TemplateData: map[string]string{"Name": "Harry", "UID": "abc", "Token": "tok"},
		}
		require.NoError(t, msg.Render())
		assert.Contains(t, msg.TextContent, "Hello Harry")
		assert.Contains(t, msg.TextContent, Conf.AppName)
		assert.Contains(t, msg.HTMLContent, "Harry")
	})

	t.Run("unknown template", func(t *testing.T) {
		msg := &EmailMessage{TemplateName: "howler"}
		assert.EqualError(t, msg.Render(), `unknown email template "howler"`)
	})
}

func TestEmailMessage_Attach(t *testing.T) {
	msg := &EmailMessage{}
	require.NoError(t, msg.Attach(bytes.NewBufferString("a,b\n"), "students.csv"))
	require.True(t, msg.HasAttachments())
	at := msg.Attachments[0]
	assert.Equal(t, "students.csv", at.Filename)
	assert.Equal(t, "text/plain; charset=utf-8", at.ContentType)
	assert.Equal(t, "YSxiCg==", at.Content.String())
}
