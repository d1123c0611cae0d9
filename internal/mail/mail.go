package mail

import (
	"context"
	"fmt"
	"sync"
	"time"

	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"koerner360/backend/config"
)

// Transport 邮件投递通道；ctx 超时即视为投递失败
type Transport interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPTransport 基于 go-mail 的 SMTP 实现
type SMTPTransport struct {
	mu      sync.Mutex
	client  *gomail.Client
	from    string
	timeout time.Duration
	logger  *zap.Logger
}

// NewSMTPTransport 按配置创建 SMTP 客户端（不立即建立连接）
func NewSMTPTransport(cfg *config.MailConfig, logger *zap.Logger) (*SMTPTransport, error) {
	opts := []gomail.Option{
		gomail.WithPort(cfg.SMTPPort),
		gomail.WithTimeout(cfg.Timeout),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	if cfg.TLS {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	} else {
		opts = append(opts, gomail.WithTLSPolicy(gomail.NoTLS))
	}

	client, err := gomail.NewClient(cfg.SMTPHost, opts...)
	if err != nil {
		return nil, fmt.Errorf("创建 SMTP 客户端失败: %w", err)
	}

	return &SMTPTransport{
		client:  client,
		from:    cfg.From,
		timeout: cfg.Timeout,
		logger:  logger,
	}, nil
}

// Send 发送纯文本邮件；每次投递独立建连，受 timeout 约束
func (t *SMTPTransport) Send(ctx context.Context, to, subject, body string) error {
	msg := gomail.NewMsg()
	if err := msg.From(t.from); err != nil {
		return fmt.Errorf("发件人地址无效: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("收件人地址无效: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("SMTP 投递失败: %w", err)
	}

	t.logger.Debug("邮件已发送", zap.String("to", to), zap.String("subject", subject))
	return nil
}

// LogTransport 未配置 SMTP 时使用：只记录日志，视为投递成功
type LogTransport struct {
	logger *zap.Logger
}

// NewLogTransport 创建 LogTransport
func NewLogTransport(logger *zap.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

// Send 记录邮件内容
func (t *LogTransport) Send(_ context.Context, to, subject, body string) error {
	t.logger.Info("邮件（未配置 SMTP，仅记录）",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("body_len", len(body)),
	)
	return nil
}

// New 根据配置选择投递通道
func New(cfg *config.MailConfig, logger *zap.Logger) (Transport, error) {
	if cfg.SMTPHost == "" {
		logger.Warn("mail.smtp_host 未配置，提醒邮件仅写入日志")
		return NewLogTransport(logger), nil
	}
	return NewSMTPTransport(cfg, logger)
}
