package mail

import (
	"context"
	"fmt"
	htmltemplate "html/template"
	"log/slog"
	texttemplate "text/template"

	gomail "github.com/wneessen/go-mail"
)

var confirmationText = texttemplate.Must(texttemplate.New("confirmation.txt").Parse(
	`Hi {{.Username}},

Please confirm your email address for {{.AppName}} by opening the link below:

{{.ConfirmURL}}

This link expires in one hour. If you did not create an account, you can ignore this email.
`))

var confirmationHTML = htmltemplate.Must(htmltemplate.New("confirmation.html").Parse(
	`<p>Hi {{.Username}},</p>
<p>Please confirm your email address for {{.AppName}} by clicking the link below:</p>
<p><a href="{{.ConfirmURL}}">Confirm my email</a></p>
<p>This link expires in one hour. If you did not create an account, you can ignore this email.</p>
`))

type confirmationData struct {
	Username   string
	AppName    string
	ConfirmURL string
}

// Service はアプリケーションが送るメールを組み立てる。
type Service struct {
	sender  Sender
	from    string
	appName string
}

// NewService はServiceを生成する。fromはMAIL_DEFAULT_SENDER。
func NewService(sender Sender, from, appName string) *Service {
	return &Service{sender: sender, from: from, appName: appName}
}

// SendConfirmation はメールアドレス確認用のリンクをテキストとHTMLの両形式で送る。
func (s *Service) SendConfirmation(ctx context.Context, to, username, confirmURL string) error {
	msg, err := s.buildConfirmation(to, username, confirmURL)
	if err != nil {
		return err
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		return err
	}
	slog.Info("confirmation mail sent", slog.String("to", to))
	return nil
}

func (s *Service) buildConfirmation(to, username, confirmURL string) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(fmt.Sprintf("%s - Confirm your email", s.appName))

	data := confirmationData{Username: username, AppName: s.appName, ConfirmURL: confirmURL}
	if err := msg.SetBodyTextTemplate(confirmationText, data); err != nil {
		return nil, fmt.Errorf("failed to render text body: %w", err)
	}
	if err := msg.AddAlternativeHTMLTemplate(confirmationHTML, data); err != nil {
		return nil, fmt.Errorf("failed to render html body: %w", err)
	}
	return msg, nil
}
