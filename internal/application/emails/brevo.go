package emails

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const brevoAPI = "https://api.brevo.com/v3/smtp/email"

// BrevoSendRequest matches Brevo API v3 send transactional email body.
type BrevoSendRequest struct {
	Sender      BrevoSender `json:"sender"`
	To          []BrevoTo   `json:"to"`
	Subject     string      `json:"subject"`
	HTMLContent string      `json:"htmlContent"`
}

type BrevoSender struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type BrevoTo struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Sender sends transactional emails. Nil = no-op.
type Sender interface {
	SendWelcome(ctx context.Context, toEmail, name string) error
}

var defaultHTTPClient = &http.Client{Timeout: 15 * time.Second}

// BrevoClient sends emails via Brevo (Sendinblue) API using SENDINBLUE_API_KEY and MAIL_FROM.
type BrevoClient struct {
	APIKey   string
	MailFrom string
	Endpoint string // defaults to the Brevo v3 SMTP endpoint
	AppURL   string // link target of the welcome mail button
	Client   *http.Client
}

func (c *BrevoClient) from() string {
	if c.MailFrom != "" {
		return c.MailFrom
	}
	return "noreply@house-marketplace.app"
}

func (c *BrevoClient) endpoint() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	return brevoAPI
}

// send sends one email via Brevo API. Without an API key it does nothing.
func (c *BrevoClient) send(ctx context.Context, toEmail, toName, subject, html string) error {
	if c.APIKey == "" {
		return nil
	}
	body := BrevoSendRequest{
		Sender:      BrevoSender{Email: c.from(), Name: "House Marketplace"},
		To:          []BrevoTo{{Email: toEmail, Name: toName}},
		Subject:     subject,
		HTMLContent: html,
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(bodyBytes))
	if err != nil {
		return err
	}
	req.Header.Set("api-key", c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	client := c.Client
	if client == nil {
		client = defaultHTTPClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("brevo send failed: status %d", resp.StatusCode)
	}
	return nil
}

// SendWelcome sends the welcome email after sign-up.
func (c *BrevoClient) SendWelcome(ctx context.Context, toEmail, name string) error {
	if c.APIKey == "" {
		return nil
	}
	if name == "" {
		name = "there"
	}
	return c.send(ctx, toEmail, name, "Welcome to House Marketplace", EmailLayout(welcomeContent(name, c.AppURL)))
}

func welcomeContent(name, appURL string) string {
	if appURL == "" {
		appURL = "/"
	}
	return fmt.Sprintf(`
    <h1>Welcome, %s!</h1>
    <p>Your account is ready. You can now list a place for sale or rent, add photos, and browse offers near you.</p>
    <p><a href="%s" class="button">Create your first listing</a></p>
    <p style="font-size: 14px; color: #666;">If you did not sign up for this account, you can ignore this email.</p>
`, EscapeHTML(name), EscapeHTML(appURL))
}
