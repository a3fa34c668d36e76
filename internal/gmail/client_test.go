package gmail

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/teemow/inboxpilot/internal/fault"
)

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(context.Background(), Config{ClientID: "id"})
	require.Error(t, err)
	assert.Equal(t, fault.KindAuth, fault.KindOf(err))
}

func TestNormalizeMessage(t *testing.T) {
	m := &gmailapi.Message{
		Id:           "m1",
		ThreadId:     "t1",
		Snippet:      "hello there",
		InternalDate: 1700000000000,
		Payload: &gmailapi.MessagePart{
			Headers: []*gmailapi.MessagePartHeader{
				{Name: "From", Value: "Alice <alice@example.com>"},
				{Name: "Subject", Value: "Weekly sync"},
			},
		},
	}

	msg := normalizeMessage(m)
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "t1", msg.ThreadID)
	assert.Equal(t, "Alice <alice@example.com>", msg.Sender)
	assert.Equal(t, "Weekly sync", msg.Subject)
	assert.Equal(t, "hello there", msg.Snippet)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), msg.Timestamp)
}

func TestNormalizeMessageFallsBackToDateHeader(t *testing.T) {
	m := &gmailapi.Message{
		Id: "m2",
		Payload: &gmailapi.MessagePart{
			Headers: []*gmailapi.MessagePartHeader{
				{Name: "Date", Value: "Mon, 02 Jan 2006 15:04:05 -0700"},
			},
		},
	}

	msg := normalizeMessage(m)
	assert.Equal(t, 2006, msg.Timestamp.Year())
}

func TestExtractTextBody(t *testing.T) {
	encode := func(s string) string {
		return base64.URLEncoding.EncodeToString([]byte(s))
	}

	t.Run("plain part", func(t *testing.T) {
		part := &gmailapi.MessagePart{
			MimeType: "text/plain",
			Body:     &gmailapi.MessagePartBody{Data: encode("plain body")},
		}
		assert.Equal(t, "plain body", extractTextBody(part))
	})

	t.Run("nested multipart", func(t *testing.T) {
		part := &gmailapi.MessagePart{
			MimeType: "multipart/alternative",
			Parts: []*gmailapi.MessagePart{
				{MimeType: "text/html", Body: &gmailapi.MessagePartBody{Data: encode("<p>html</p>")}},
				{MimeType: "text/plain", Body: &gmailapi.MessagePartBody{Data: encode("nested body")}},
			},
		}
		assert.Equal(t, "nested body", extractTextBody(part))
	})

	t.Run("no text part", func(t *testing.T) {
		part := &gmailapi.MessagePart{MimeType: "image/png"}
		assert.Empty(t, extractTextBody(part))
	})
}

func TestCoolOffBlocksCalls(t *testing.T) {
	c := &Client{}
	require.NoError(t, c.checkCoolOff())

	c.coolOffUntil = time.Now().Add(time.Minute)
	err := c.checkCoolOff()
	require.Error(t, err)
	assert.Equal(t, fault.KindRateLimited, fault.KindOf(err))
}
