// Package mailer dispatches calendar attachments through the Mailgun
// messages API.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	appLog "schedex/internal/log"
)

// Attachment is a file to attach to an outgoing message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message is one outgoing mail.
type Message struct {
	To       string
	Subject  string
	Template string
	// Variables are template variables, sent with Mailgun's "v:" prefix.
	Variables  map[string]string
	Attachment *Attachment
}

// Sender is the dispatch sink the HTTP layer depends on.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Mailgun sends messages via the Mailgun REST API.
type Mailgun struct {
	client  *http.Client
	apiKey  string
	domain  string
	sender  string
	baseURL string
}

// NewMailgun creates a Mailgun sink for the given domain. senderName is the
// display name on the From header.
func NewMailgun(apiKey, domain, senderName string) *Mailgun {
	return &Mailgun{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		apiKey:  apiKey,
		domain:  domain,
		sender:  senderName,
		baseURL: "https://api.mailgun.net/v3",
	}
}

// SetBaseURL overrides the API endpoint. Tests only.
func (m *Mailgun) SetBaseURL(u string) {
	m.baseURL = u
}

func (m *Mailgun) Send(ctx context.Context, msg Message) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := map[string]string{
		"from":    fmt.Sprintf("%s <mailgun@%s>", m.sender, m.domain),
		"to":      msg.To,
		"subject": msg.Subject,
	}
	if msg.Template != "" {
		fields["template"] = msg.Template
	}
	for k, v := range msg.Variables {
		fields["v:"+k] = v
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return err
		}
	}

	if att := msg.Attachment; att != nil {
		part, err := w.CreateFormFile("attachment", att.Filename)
		if err != nil {
			return err
		}
		if _, err := part.Write(att.Content); err != nil {
			return err
		}
	}

	if err := w.Close(); err != nil {
		return err
	}

	url := fmt.Sprintf("%s/%s/messages", m.baseURL, m.domain)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.SetBasicAuth("api", m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		appLog.Error("mailgun request failed", err, "to", msg.To)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("mailer: mailgun %s: %s", resp.Status, bytes.TrimSpace(data))
	}

	appLog.Info("mail dispatched", "to", msg.To, "subject", msg.Subject)
	return nil
}
