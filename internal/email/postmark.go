package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dukerupert/village/internal/metrics"
	"github.com/dukerupert/village/internal/model"
)

const apiURL = "https://api.postmarkapp.com/email"

// ErrNotConfigured is returned when no Postmark server token is set.
var ErrNotConfigured = errors.New("email client not configured: missing server token")

type Client struct {
	serverToken string
	fromEmail   string
	baseURL     string
	httpClient  *http.Client
	retryBase   time.Duration
	maxRetries  uint64
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithRetry sets the first backoff interval and the number of retries after
// the initial attempt.
func WithRetry(base time.Duration, maxRetries uint64) Option {
	return func(cl *Client) {
		cl.retryBase = base
		cl.maxRetries = maxRetries
	}
}

func NewClient(serverToken, fromEmail, baseURL string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		retryBase:   500 * time.Millisecond,
		maxRetries:  3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
	Tag      string `json:"Tag,omitempty"`
}

// SendCode emails a one-time code for MFA, an invitation or a password reset.
func (c *Client) SendCode(ctx context.Context, toEmail, code, purpose, householdName string) error {
	var subject, action string
	switch purpose {
	case model.CodePurposeMFA:
		subject = "Your Village sign-in code"
		action = "finish signing in"
	case model.CodePurposeInvite:
		subject = fmt.Sprintf("You've been invited to %s on Village", householdName)
		action = "join the household"
	case model.CodePurposeReset:
		subject = "Reset your Village password"
		action = "reset your password"
	default:
		subject = "Your Village code"
		action = "continue"
	}

	text := fmt.Sprintf("Use this code to %s:\n\n%s\n\nIt expires in 15 minutes.", action, code)
	if purpose == model.CodePurposeInvite {
		text += fmt.Sprintf("\n\nOpen %s/join to get started.", c.baseURL)
	}
	html := fmt.Sprintf(`<p>Use this code to %s:</p><p style="font-size:24px"><strong>%s</strong></p><p>It expires in 15 minutes.</p>`, action, code)

	return c.send(ctx, "auth_"+purpose, postmarkEmail{
		To:       toEmail,
		Subject:  subject,
		TextBody: text,
		HtmlBody: html,
	})
}

// SendHelpRequest asks a village member for help on behalf of the household.
func (c *Client) SendHelpRequest(ctx context.Context, toEmail, householdName string, req model.HelpRequest) error {
	subject := fmt.Sprintf("%s could use a hand: %s", householdName, req.Title)
	text := req.Title
	if req.Description != "" {
		text += "\n\n" + req.Description
	}
	if req.NeededBy != "" {
		text += "\n\nNeeded by " + req.NeededBy
	}
	if req.Urgency == "urgent" {
		subject = "Urgent: " + subject
	}
	return c.send(ctx, model.NotifTypeHelpRequest, postmarkEmail{
		To:       toEmail,
		Subject:  subject,
		TextBody: text,
		HtmlBody: fmt.Sprintf("<p>%s</p>", text),
	})
}

// SendDelegation tells a village member about a task handed to them.
func (c *Client) SendDelegation(ctx context.Context, toEmail, householdName string, task model.DelegationTask) error {
	text := fmt.Sprintf("%s has asked you to help with: %s", householdName, task.Title)
	if task.Description != "" {
		text += "\n\n" + task.Description
	}
	if task.DueDate != "" {
		text += "\n\nDue " + task.DueDate
	}
	return c.send(ctx, "delegation", postmarkEmail{
		To:       toEmail,
		Subject:  fmt.Sprintf("A task from %s: %s", householdName, task.Title),
		TextBody: text,
		HtmlBody: fmt.Sprintf("<p>%s</p>", text),
	})
}

// send posts the email, retrying network failures and 5xx responses with
// exponential backoff. 4xx responses fail immediately.
func (c *Client) send(ctx context.Context, tag string, msg postmarkEmail) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	msg.From = c.fromEmail
	msg.Tag = tag

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	b := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.retryBase))
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, "POST", apiURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Postmark-Server-Token", c.serverToken)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("send email: %w", err))
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 500:
			return retry.RetryableError(fmt.Errorf("postmark API error: status %d", resp.StatusCode))
		case resp.StatusCode >= 400:
			return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
		}
		return nil
	})

	result := "sent"
	if err != nil {
		result = "failed"
	}
	metrics.NotificationSent("email", tag, result)
	return err
}
