// Package mail は確認メールの組み立てとSMTP送信を提供する。
package mail

import (
	"context"
	"fmt"
	"time"

	gomail "github.com/wneessen/go-mail"
)

const defaultSMTPTimeout = 15 * time.Second

// Sender は組み立て済みのメッセージを送信する。
type Sender interface {
	Send(ctx context.Context, msg *gomail.Msg) error
}

// SMTPConfig はSMTPサーバーへの接続設定。
type SMTPConfig struct {
	Host     string
	Port     int
	UseTLS   bool // STARTTLSを必須にする
	Username string
	Password string
	Timeout  time.Duration
}

// SMTPSender はgo-mailのクライアントでSMTP送信するSender。
type SMTPSender struct {
	client *gomail.Client
}

// NewSMTPSender はSMTPSenderを生成する。接続は送信時に都度確立する。
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSMTPTimeout
	}
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTimeout(cfg.Timeout),
	}
	if cfg.UseTLS {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	} else {
		opts = append(opts, gomail.WithTLSPolicy(gomail.NoTLS))
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}

	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}
	return &SMTPSender{client: client}, nil
}

// Send はメッセージを送信する。失敗時の再送は行わない。
func (s *SMTPSender) Send(ctx context.Context, msg *gomail.Msg) error {
	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	return nil
}
