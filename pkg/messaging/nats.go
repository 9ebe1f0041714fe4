// pkg/messaging/nats.go
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

// NATSClient NATS JetStream客户端
type NATSClient struct {
	conn      *nats.Conn
	jetStream jetstream.JetStream
	stream    string
	logger    *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	consumers map[string]jetstream.ConsumeContext
	mu        sync.Mutex
}

// MessageHandler 通用消息处理函数类型
type MessageHandler func(data []byte) error

// NewNATSClient 创建新的NATS客户端并确保告警事件 Stream 存在
func NewNATSClient(natsURL, stream string, logger *zap.Logger) (*NATSClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// 连接NATS
	nc, err := nats.Connect(natsURL,
		nats.Name("sosradar"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1), // 无限重连
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS连接断开", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS重新连接成功", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("连接NATS失败: %w", err)
	}

	// 创建JetStream上下文
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("创建JetStream失败: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	client := &NATSClient{
		conn:      nc,
		jetStream: js,
		stream:    stream,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		consumers: make(map[string]jetstream.ConsumeContext),
	}

	if err := client.setupStream(); err != nil {
		client.Close()
		return nil, err
	}

	return client, nil
}

// setupStream 告警生命周期事件流
func (c *NATSClient) setupStream() error {
	cfg := jetstream.StreamConfig{
		Name:        c.stream,
		Subjects:    []string{SubjectPrefix + ".*"},
		Description: "SOS告警生命周期事件",
		Retention:   jetstream.LimitsPolicy,
		MaxMsgs:     100000,
		MaxBytes:    100 * 1024 * 1024,  // 100MB
		MaxAge:      30 * 24 * time.Hour, // 保留30天
	}

	ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
	defer cancel()
	if _, err := c.jetStream.CreateOrUpdateStream(ctx, cfg); err != nil {
		return fmt.Errorf("创建/更新Stream %s 失败: %w", cfg.Name, err)
	}
	c.logger.Info("Stream 设置成功", zap.String("stream", cfg.Name))
	return nil
}

// Publish 发布消息到指定主题
func (c *NATSClient) Publish(ctx context.Context, subject string, data interface{}) error {
	var payload []byte
	var err error

	switch v := data.(type) {
	case []byte:
		payload = v
	case string:
		payload = []byte(v)
	default:
		payload, err = json.Marshal(data)
		if err != nil {
			return fmt.Errorf("序列化数据失败: %w", err)
		}
	}

	if _, err = c.jetStream.Publish(ctx, subject, payload); err != nil {
		return fmt.Errorf("发布消息到 %s 失败: %w", subject, err)
	}

	c.logger.Debug("发布消息", zap.String("subject", subject), zap.Int("bytes", len(payload)))
	return nil
}

// PublishAlertEvent 发布告警事件到 sos.<type>
func (c *NATSClient) PublishAlertEvent(ctx context.Context, event AlertEvent) error {
	return c.Publish(ctx, event.Subject(), event)
}

// Subscribe 以持久消费者订阅主题
func (c *NATSClient) Subscribe(consumerName, filterSubject string, handler MessageHandler) error {
	consumerConfig := jetstream.ConsumerConfig{
		Durable:       consumerName,
		Description:   fmt.Sprintf("%s 消费者", consumerName),
		FilterSubject: filterSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	}

	consumer, err := c.jetStream.CreateOrUpdateConsumer(c.ctx, c.stream, consumerConfig)
	if err != nil {
		return fmt.Errorf("创建消费者 %s 失败: %w", consumerName, err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		if err := handler(msg.Data()); err != nil {
			c.logger.Warn("处理消息失败",
				zap.String("consumer", consumerName),
				zap.String("subject", msg.Subject()),
				zap.Error(err),
			)
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("启动消费者 %s 失败: %w", consumerName, err)
	}

	c.mu.Lock()
	c.consumers[consumerName] = cc
	c.mu.Unlock()

	c.logger.Info("已订阅",
		zap.String("subject", filterSubject),
		zap.String("stream", c.stream),
		zap.String("consumer", consumerName),
	)
	return nil
}

// Close 停止消费者并关闭连接
func (c *NATSClient) Close() error {
	c.cancel()

	c.mu.Lock()
	for name, cc := range c.consumers {
		cc.Stop()
		delete(c.consumers, name)
	}
	c.mu.Unlock()

	if c.conn != nil {
		if err := c.conn.Drain(); err != nil {
			c.conn.Close()
		}
	}

	c.logger.Info("NATS连接已关闭")
	return nil
}

// IsConnected 检查连接状态
func (c *NATSClient) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}
