// Package kafka carries asynchronous transform requests over Kafka. Each
// TransformRequest consumed from the request topic is dispatched and
// answered with one TransformReply per result.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/rhuss/wandel/pkg/api"
	"github.com/rhuss/wandel/pkg/debug"
	"github.com/rhuss/wandel/pkg/dispatch"
	"github.com/rhuss/wandel/pkg/observability"
	"github.com/rhuss/wandel/pkg/storage"
)

// Message headers understood by the consumer.
const (
	HeaderReplyTo = "replyTo"
	HeaderTenant  = "tenant"
)

// Dispatcher runs one transform request.
type Dispatcher interface {
	Handle(ctx context.Context, h dispatch.Hooks) *dispatch.Record
}

// Consumer reads transform requests from a consumer group and produces
// the replies.
type Consumer struct {
	cfg      Config
	core     Dispatcher
	store    storage.FileStore
	fetcher  *dispatch.Fetcher
	producer sarama.SyncProducer
	client   sarama.Client
	group    sarama.ConsumerGroup
	logger   *slog.Logger
}

// Option configures a Consumer.
type Option func(*Consumer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Consumer) { c.logger = l }
}

// WithFetcher sets the client used for direct access URLs.
func WithFetcher(f *dispatch.Fetcher) Option {
	return func(c *Consumer) { c.fetcher = f }
}

// WithProducer replaces the reply producer.
func WithProducer(p sarama.SyncProducer) Option {
	return func(c *Consumer) { c.producer = p }
}

// NewConsumer connects to the brokers and joins the consumer group.
func NewConsumer(cfg Config, core Dispatcher, store storage.FileStore, opts ...Option) (*Consumer, error) {
	c := newConsumer(cfg, core, store, opts...)

	sc, err := saramaConfig(cfg)
	if err != nil {
		return nil, err
	}
	if c.client, err = sarama.NewClient(cfg.Brokers, sc); err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	if c.group, err = sarama.NewConsumerGroupFromClient(cfg.GroupID, c.client); err != nil {
		_ = c.client.Close()
		return nil, fmt.Errorf("kafka consumer group: %w", err)
	}
	if c.producer == nil {
		if c.producer, err = sarama.NewSyncProducerFromClient(c.client); err != nil {
			_ = c.group.Close()
			_ = c.client.Close()
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
	}
	return c, nil
}

func newConsumer(cfg Config, core Dispatcher, store storage.FileStore, opts ...Option) *Consumer {
	c := &Consumer{cfg: cfg, core: core, store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func saramaConfig(cfg Config) (*sarama.Config, error) {
	ver, err := sarama.ParseKafkaVersion(cfg.Version)
	if err != nil {
		return nil, err
	}
	sc := sarama.NewConfig()
	sc.Version = ver
	sc.ClientID = cfg.ClientID
	sc.Consumer.Return.Errors = true
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	if cfg.TLSEn {
		sc.Net.TLS.Enable = true
	}
	if cfg.SASLUser != "" {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.User, sc.Net.SASL.Password = cfg.SASLUser, cfg.SASLPass
	}
	switch cfg.StartFrom {
	case "oldest":
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	default:
		sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	return sc, nil
}

// Run consumes until ctx is cancelled. A failed session is rejoined after
// the configured backoff.
func (c *Consumer) Run(ctx context.Context) error {
	go c.logErrors(ctx)
	for {
		if err := c.group.Consume(ctx, []string{c.cfg.RequestTopic}, c); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.logger.Error("kafka consume failed", "topic", c.cfg.RequestTopic, "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(c.cfg.RetryBackoff):
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) logErrors(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-c.group.Errors():
			if !ok {
				return
			}
			c.logger.Warn("kafka consumer group error", "error", err)
		}
	}
}

// Close leaves the group and closes the producer.
func (c *Consumer) Close() error {
	var errs []error
	if c.group != nil {
		errs = append(errs, c.group.Close())
	}
	if c.producer != nil {
		errs = append(errs, c.producer.Close())
	}
	if c.client != nil && !c.client.Closed() {
		errs = append(errs, c.client.Close())
	}
	return errors.Join(errs...)
}

func (*Consumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (*Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim handles messages one at a time. An offset is marked only
// once every reply for the message has been produced, so a failed reply
// ends the session and the message is delivered again.
func (c *Consumer) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := c.process(ctx, msg); err != nil {
				return err
			}
			sess.MarkMessage(msg, "")
		}
	}
}

// process dispatches one message and produces its replies.
func (c *Consumer) process(ctx context.Context, msg *sarama.ConsumerMessage) error {
	headers := headerMap(msg.Headers)
	if tenant := headers[HeaderTenant]; tenant != "" {
		ctx = storage.SetTenant(ctx, tenant)
	}
	debug.Log("messaging", "message received", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)

	var req api.TransformRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		return c.rejectMalformed(ctx, msg, headers, err)
	}

	h := &dispatch.MessageRequest{Request: &req, Store: c.store, Fetcher: c.fetcher}
	rec := c.core.Handle(ctx, h)

	topic := c.replyTopic(headers, req.InternalContext)
	for _, reply := range h.Replies() {
		if err := c.send(topic, reply); err != nil {
			observability.MessagesTotal.WithLabelValues("reply_failed").Inc()
			return err
		}
	}
	observability.MessagesTotal.WithLabelValues(messageStatus(rec.StatusCode)).Inc()
	return nil
}

// rejectMalformed replies 400 when the request id can still be read.
// Anything else is logged and skipped.
func (c *Consumer) rejectMalformed(ctx context.Context, msg *sarama.ConsumerMessage, headers map[string]string, cause error) error {
	var partial struct {
		RequestID       string               `json:"requestId"`
		ClientData      string               `json:"clientData"`
		InternalContext *api.InternalContext `json:"internalContext"`
	}
	if err := json.Unmarshal(msg.Value, &partial); err != nil || partial.RequestID == "" {
		c.logger.WarnContext(ctx, "skipping unreadable transform request",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", cause)
		observability.MessagesTotal.WithLabelValues("malformed").Inc()
		return nil
	}

	reply := &api.TransformReply{
		RequestID:       partial.RequestID,
		Status:          api.StatusBadRequest,
		ErrorDetails:    "Invalid transform request: " + cause.Error(),
		ClientData:      partial.ClientData,
		InternalContext: partial.InternalContext,
	}
	if err := c.send(c.replyTopic(headers, partial.InternalContext), reply); err != nil {
		observability.MessagesTotal.WithLabelValues("reply_failed").Inc()
		return err
	}
	observability.MessagesTotal.WithLabelValues("malformed").Inc()
	return nil
}

// replyTopic picks the replyTo header, then the destination carried in
// the internal context, then the configured topic.
func (c *Consumer) replyTopic(headers map[string]string, ic *api.InternalContext) string {
	if t := headers[HeaderReplyTo]; t != "" {
		return t
	}
	if ic != nil && ic.ReplyToDestination != "" {
		return ic.ReplyToDestination
	}
	return c.cfg.ReplyTopic
}

func (c *Consumer) send(topic string, reply *api.TransformReply) error {
	data, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("encoding reply %s: %w", reply.RequestID, err)
	}
	partition, offset, err := c.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(reply.RequestID),
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		c.logger.Error("sending transform reply failed", "request_id", reply.RequestID, "topic", topic, "error", err)
		return fmt.Errorf("sending reply %s: %w", reply.RequestID, err)
	}
	debug.Log("messaging", "reply sent", "request_id", reply.RequestID, "status", reply.Status,
		"topic", topic, "partition", partition, "offset", offset)
	return nil
}

func messageStatus(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "success"
	case code >= 400 && code < 500:
		return "client_error"
	default:
		return "server_error"
	}
}

func headerMap(src []*sarama.RecordHeader) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for _, h := range src {
		if h != nil {
			out[string(h.Key)] = string(h.Value)
		}
	}
	return out
}
