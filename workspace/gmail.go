package workspace

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/dottie-ai/assistant-server/googleauth"
)

// Email is an outbound message.
type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (e Email) validate() error {
	if strings.TrimSpace(e.To) == "" {
		return errors.New("email recipient is required")
	}
	if strings.TrimSpace(e.Subject) == "" && strings.TrimSpace(e.Body) == "" {
		return errors.New("email needs a subject or a body")
	}
	return nil
}

// raw encodes the message as the base64url RFC 822 payload the Gmail API
// expects.
func (e Email) raw() string {
	msg := fmt.Sprintf("To: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s", e.To, e.Subject, e.Body)
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString([]byte(msg))
}

// SendEmail sends an email as the authenticated caller and returns the
// provider message id.
func (s *Service) SendEmail(ctx context.Context, client *googleauth.Client, email Email) (string, error) {
	if err := email.validate(); err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/users/me/messages/send", s.gmailBaseURL)
	body := map[string]string{"raw": email.raw()}

	var resp struct {
		ID string `json:"id"`
	}
	if err := client.PostJSON(ctx, endpoint, body, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}
