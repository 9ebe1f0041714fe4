// Package notifier 向紧急联系人投递SOS消息
package notifier

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Notifier 向一个邮箱地址投递消息，每次调用相互独立
type Notifier interface {
	Send(ctx context.Context, address, subject, body string) error
}

// LogNotifier 开发环境使用，消息只写入日志
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, address, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.logger.Info("SOS通知",
		zap.String("to", address),
		zap.String("subject", subject),
		zap.String("body", body),
	)
	return nil
}

// WebhookNotifier 将消息以 JSON POST 到邮件网关
type WebhookNotifier struct {
	httpClient *resty.Client
	url        string
	from       string
}

type webhookPayload struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func NewWebhookNotifier(url, from string, timeout time.Duration) *WebhookNotifier {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &WebhookNotifier{
		httpClient: client,
		url:        url,
		from:       from,
	}
}

func (n *WebhookNotifier) Send(ctx context.Context, address, subject, body string) error {
	resp, err := n.httpClient.R().
		SetContext(ctx).
		SetBody(webhookPayload{
			To:      address,
			From:    n.from,
			Subject: subject,
			Body:    body,
		}).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("调用邮件网关失败: %w", err)
	}
	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		return fmt.Errorf("邮件网关返回状态码: %d", resp.StatusCode())
	}
	return nil
}
