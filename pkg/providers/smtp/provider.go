// Package smtp delivers email through a plain SMTP relay configured on the
// integration credentials.
package smtp

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/courierhq/courier/pkg/models"
	"github.com/courierhq/courier/pkg/providers"
)

const ProviderID = "smtp"

type Provider struct {
	logger *slog.Logger

	// send is swappable for tests; defaults to smtp.SendMail.
	send func(addr string, auth smtp.Auth, from string, to []string, message []byte) error
}

func NewProvider(logger *slog.Logger) *Provider {
	return &Provider{
		logger: logger.With("module", "smtp_provider"),
		send:   smtp.SendMail,
	}
}

func (p *Provider) ID() string {
	return ProviderID
}

func (p *Provider) SendEmail(ctx context.Context, credentials models.IntegrationCredentials, message providers.EmailMessage) (*providers.Receipt, error) {
	if credentials.Host == "" {
		return nil, fmt.Errorf("smtp credentials are missing a host")
	}

	port := credentials.Port
	if port == "" {
		port = "587"
	}

	addr := credentials.Host + ":" + port

	var auth smtp.Auth
	if credentials.User != "" {
		auth = smtp.PlainAuth("", credentials.User, credentials.Password, credentials.Host)
	}

	messageID := uuid.New().String()

	err := p.send(addr, auth, message.From, message.To, encode(messageID, message))
	if err != nil {
		return nil, fmt.Errorf("smtp relay %s rejected message: %w", addr, err)
	}

	p.logger.DebugContext(ctx, "Email accepted by relay", "addr", addr, "message_id", messageID)

	return &providers.Receipt{ProviderMessageID: messageID}, nil
}

func encode(messageID string, message providers.EmailMessage) []byte {
	var builder strings.Builder

	from := message.From
	if message.SenderName != "" {
		from = fmt.Sprintf("%s <%s>", message.SenderName, message.From)
	}

	fmt.Fprintf(&builder, "Message-ID: <%s>\r\n", messageID)
	fmt.Fprintf(&builder, "From: %s\r\n", from)
	fmt.Fprintf(&builder, "To: %s\r\n", strings.Join(message.To, ", "))

	if message.ReplyTo != "" {
		fmt.Fprintf(&builder, "Reply-To: %s\r\n", message.ReplyTo)
	}

	fmt.Fprintf(&builder, "Subject: %s\r\n", message.Subject)

	headers := make([]string, 0, len(message.Headers))
	for name := range message.Headers {
		headers = append(headers, name)
	}

	sort.Strings(headers)

	for _, name := range headers {
		fmt.Fprintf(&builder, "%s: %s\r\n", name, message.Headers[name])
	}

	builder.WriteString("MIME-Version: 1.0\r\n")
	builder.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	builder.WriteString("\r\n")
	builder.WriteString(message.Body)

	return []byte(builder.String())
}
