package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"sync"
	"time"

	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/teemow/inboxpilot/internal/fault"
	"github.com/teemow/inboxpilot/internal/instrumentation"
	"github.com/teemow/inboxpilot/internal/logging"
)

const (
	// gmailScope is the read-only scope. The service never mutates the
	// mailbox, so nothing broader is requested.
	gmailScope = gmailapi.GmailReadonlyScope

	// googleTokenURL is Google's OAuth2 token endpoint used to exchange
	// the long-lived refresh token for short-lived access tokens.
	googleTokenURL = "https://oauth2.googleapis.com/token"

	// rateLimitCoolOff is how long the client refuses new calls after
	// the API reports quota exhaustion.
	rateLimitCoolOff = 30 * time.Second
)

// Config holds the OAuth2 credentials for a Gmail account.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	// Account is the user ID passed to the Gmail API, usually "me".
	Account string
}

// Client provides read-only access to a Gmail mailbox.
type Client struct {
	svc     *gmailapi.Service
	account string
	logger  *slog.Logger

	mu           sync.Mutex
	coolOffUntil time.Time
}

// NewClient builds a Gmail client from a refresh token. The token source
// refreshes access tokens automatically for the lifetime of the client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, fault.New(fault.KindAuth, "gmail credentials not configured")
	}
	account := cfg.Account
	if account == "" {
		account = "me"
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: googleTokenURL},
		Scopes:       []string{gmailScope},
	}
	ts := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	svc, err := gmailapi.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fault.Wrapf(fault.KindUpstream, err, "create gmail service")
	}

	return &Client{
		svc:     svc,
		account: account,
		logger:  logging.WithService(slog.Default(), "gmail"),
	}, nil
}

// Ping verifies the credentials by fetching the mailbox profile.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.checkCoolOff(); err != nil {
		return err
	}
	_, err := c.svc.Users.GetProfile(c.account).Context(ctx).Do()
	if err != nil {
		return c.mapErr(err, "get profile")
	}
	return nil
}

// SearchMessages runs a Gmail search query and returns normalized
// messages in the order Gmail ranks them, newest first. At most
// maxResults messages are returned, bounded by MaxRecords; truncated
// reports whether more matches existed.
func (c *Client) SearchMessages(ctx context.Context, query string, maxResults int) (msgs []Message, truncated bool, err error) {
	ctx, span := instrumentation.StartUpstreamSpan(ctx, instrumentation.ServiceGmail, instrumentation.OperationSearch)
	defer func() { instrumentation.EndUpstreamSpan(span, err) }()

	if err := c.checkCoolOff(); err != nil {
		return nil, false, err
	}
	if maxResults <= 0 || maxResults > MaxRecords {
		maxResults = MaxRecords
	}

	start := time.Now()
	list, err := c.svc.Users.Messages.List(c.account).
		Q(query).
		MaxResults(int64(maxResults + 1)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, false, c.mapErr(err, "search messages")
	}

	ids := list.Messages
	if len(ids) > maxResults {
		ids = ids[:maxResults]
		truncated = true
	}

	msgs = make([]Message, 0, len(ids))
	for _, ref := range ids {
		m, err := c.svc.Users.Messages.Get(c.account, ref.Id).
			Format("metadata").
			MetadataHeaders("From", "Subject", "Date").
			Context(ctx).
			Do()
		if err != nil {
			return nil, false, c.mapErr(err, "get message metadata")
		}
		msgs = append(msgs, normalizeMessage(m))
	}

	c.logger.DebugContext(ctx, "gmail search complete",
		slog.Int("results", len(msgs)),
		slog.Bool("truncated", truncated),
		slog.Duration(logging.KeyDuration, time.Since(start)),
	)
	return msgs, truncated, nil
}

// GetMessage fetches a single message by ID, including the decoded
// text body.
func (c *Client) GetMessage(ctx context.Context, id string) (full *FullMessage, err error) {
	ctx, span := instrumentation.StartUpstreamSpan(ctx, instrumentation.ServiceGmail, instrumentation.OperationGet)
	defer func() { instrumentation.EndUpstreamSpan(span, err) }()

	if err := c.checkCoolOff(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, fault.New(fault.KindInvalidArguments, "email_id must not be empty")
	}

	m, err := c.svc.Users.Messages.Get(c.account, id).
		Format("full").
		Context(ctx).
		Do()
	if err != nil {
		return nil, c.mapErr(err, "get message")
	}

	full = &FullMessage{
		Message: normalizeMessage(m),
		Labels:  m.LabelIds,
		Body:    m.Snippet,
	}
	if m.Payload != nil {
		full.To = headerValue(m.Payload.Headers, "To")
		full.Cc = headerValue(m.Payload.Headers, "Cc")
		if body := extractTextBody(m.Payload); body != "" {
			full.Body = body
		}
	}
	return full, nil
}

// checkCoolOff rejects calls while the client is backing off after a
// quota error. The window is shared across goroutines.
func (c *Client) checkCoolOff() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if time.Now().Before(c.coolOffUntil) {
		return fault.New(fault.KindRateLimited, "gmail quota exhausted, backing off")
	}
	return nil
}

func (c *Client) mapErr(err error, op string) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || (apiErr.Code == http.StatusForbidden && isQuotaError(apiErr)) {
			c.mu.Lock()
			c.coolOffUntil = time.Now().Add(rateLimitCoolOff)
			c.mu.Unlock()
			return fault.Wrapf(fault.KindRateLimited, err, "gmail: %s", op)
		}
		return fault.FromHTTPStatus(apiErr.Code, fmt.Sprintf("gmail: %s: %s", op, apiErr.Message))
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fault.Wrapf(fault.KindTimeout, err, "gmail: %s", op)
	}
	return fault.Wrapf(fault.KindUpstream, err, "gmail: %s", op)
}

// isQuotaError distinguishes a 403 caused by quota from a 403 caused by
// missing permissions; Gmail reports both with the same status code.
func isQuotaError(apiErr *googleapi.Error) bool {
	for _, e := range apiErr.Errors {
		if e.Reason == "rateLimitExceeded" || e.Reason == "userRateLimitExceeded" || e.Reason == "quotaExceeded" {
			return true
		}
	}
	return false
}

func normalizeMessage(m *gmailapi.Message) Message {
	msg := Message{
		ID:       m.Id,
		ThreadID: m.ThreadId,
		Snippet:  m.Snippet,
	}
	if m.InternalDate > 0 {
		msg.Timestamp = time.UnixMilli(m.InternalDate).UTC()
	}
	if m.Payload != nil {
		msg.Sender = headerValue(m.Payload.Headers, "From")
		msg.Subject = headerValue(m.Payload.Headers, "Subject")
		if msg.Timestamp.IsZero() {
			if t, err := mail.ParseDate(headerValue(m.Payload.Headers, "Date")); err == nil {
				msg.Timestamp = t.UTC()
			}
		}
	}
	return msg
}

func headerValue(headers []*gmailapi.MessagePartHeader, name string) string {
	for _, h := range headers {
		if h.Name == name {
			return h.Value
		}
	}
	return ""
}

// extractTextBody walks the MIME tree for the first text/plain part and
// decodes it. Multipart messages nest parts arbitrarily deep.
func extractTextBody(part *gmailapi.MessagePart) string {
	if part.MimeType == "text/plain" && part.Body != nil && part.Body.Data != "" {
		data, err := base64.URLEncoding.DecodeString(part.Body.Data)
		if err != nil {
			return ""
		}
		return string(data)
	}
	for _, p := range part.Parts {
		if body := extractTextBody(p); body != "" {
			return body
		}
	}
	return ""
}
