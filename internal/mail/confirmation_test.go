package mail

import (
	"context"
	"errors"
	"strings"
	"testing"

	gomail "github.com/wneessen/go-mail"
)

type mockSender struct {
	sendFn func(ctx context.Context, msg *gomail.Msg) error
	sent   []*gomail.Msg
}

func (m *mockSender) Send(ctx context.Context, msg *gomail.Msg) error {
	m.sent = append(m.sent, msg)
	if m.sendFn != nil {
		return m.sendFn(ctx, msg)
	}
	return nil
}

var _ Sender = (*mockSender)(nil)
var _ Sender = (*SMTPSender)(nil)

func partContents(t *testing.T, msg *gomail.Msg) map[gomail.ContentType]string {
	t.Helper()
	out := make(map[gomail.ContentType]string)
	for _, p := range msg.GetParts() {
		b, err := p.GetContent()
		if err != nil {
			t.Fatalf("GetContent() error = %v", err)
		}
		out[p.GetContentType()] = string(b)
	}
	return out
}

func TestSendConfirmation_BuildsMessage(t *testing.T) {
	sender := &mockSender{}
	svc := NewService(sender, "noreply@example.com", "Debate Hub")

	url := "https://debate.example.com/confirm/abc.def.ghi"
	if err := svc.SendConfirmation(context.Background(), "alice@example.com", "alice", url); err != nil {
		t.Fatalf("SendConfirmation() error = %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(sender.sent))
	}
	msg := sender.sent[0]

	subject := msg.GetGenHeader(gomail.HeaderSubject)
	if len(subject) != 1 || subject[0] != "Debate Hub - Confirm your email" {
		t.Errorf("Subject = %v", subject)
	}

	rcpts, err := msg.GetRecipients()
	if err != nil {
		t.Fatalf("GetRecipients() error = %v", err)
	}
	if len(rcpts) != 1 || rcpts[0] != "alice@example.com" {
		t.Errorf("recipients = %v", rcpts)
	}

	parts := partContents(t, msg)
	if !strings.Contains(parts[gomail.TypeTextPlain], url) {
		t.Errorf("text body does not contain confirm URL: %q", parts[gomail.TypeTextPlain])
	}
	if !strings.Contains(parts[gomail.TypeTextHTML], `href="`+url+`"`) {
		t.Errorf("html body does not contain confirm link: %q", parts[gomail.TypeTextHTML])
	}
}

func TestSendConfirmation_EscapesUsernameInHTML(t *testing.T) {
	sender := &mockSender{}
	svc := NewService(sender, "noreply@example.com", "Debate Hub")

	if err := svc.SendConfirmation(context.Background(), "x@example.com", "<script>x</script>", "https://h/confirm/t"); err != nil {
		t.Fatalf("SendConfirmation() error = %v", err)
	}

	html := partContents(t, sender.sent[0])[gomail.TypeTextHTML]
	if strings.Contains(html, "<script>") {
		t.Errorf("username was not escaped: %q", html)
	}
}

func TestSendConfirmation_SenderFailurePropagates(t *testing.T) {
	sender := &mockSender{sendFn: func(context.Context, *gomail.Msg) error {
		return errors.New("connection refused")
	}}
	svc := NewService(sender, "noreply@example.com", "Debate Hub")

	if err := svc.SendConfirmation(context.Background(), "a@example.com", "a", "https://h/confirm/t"); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestSendConfirmation_InvalidRecipient(t *testing.T) {
	sender := &mockSender{}
	svc := NewService(sender, "noreply@example.com", "Debate Hub")

	if err := svc.SendConfirmation(context.Background(), "not an address", "a", "https://h/confirm/t"); err == nil {
		t.Fatal("expected error, got nil")
	}
	if len(sender.sent) != 0 {
		t.Errorf("invalid message must not be sent")
	}
}

func TestNewSMTPSender(t *testing.T) {
	tests := []struct {
		name string
		cfg  SMTPConfig
	}{
		{"認証なし・平文", SMTPConfig{Host: "localhost", Port: 25}},
		{"認証あり・STARTTLS", SMTPConfig{Host: "smtp.example.com", Port: 587, UseTLS: true, Username: "u", Password: "p"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSMTPSender(tt.cfg)
			if err != nil {
				t.Fatalf("NewSMTPSender() error = %v", err)
			}
			if s == nil {
				t.Fatal("expected non-nil sender")
			}
		})
	}
}
