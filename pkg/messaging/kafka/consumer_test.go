package kafka

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/IBM/sarama"

	"github.com/rhuss/wandel/pkg/api"
	"github.com/rhuss/wandel/pkg/catalog"
	"github.com/rhuss/wandel/pkg/dispatch"
	"github.com/rhuss/wandel/pkg/storage/memory"
)

type upper struct{}

func (upper) Name() string { return "Upper" }

func (upper) Transform(_ context.Context, _ *dispatch.Request, in io.Reader, out io.Writer, _ dispatch.Manager) error {
	data, err := io.ReadAll(in)
	if err != nil {
		return err
	}
	_, err = out.Write(bytes.ToUpper(data))
	return err
}

// fakeProducer records sent messages. Methods it does not override panic.
type fakeProducer struct {
	sarama.SyncProducer
	sent []*sarama.ProducerMessage
	err  error
}

func (p *fakeProducer) SendMessage(msg *sarama.ProducerMessage) (int32, int64, error) {
	if p.err != nil {
		return 0, 0, p.err
	}
	p.sent = append(p.sent, msg)
	return 0, int64(len(p.sent)), nil
}

func (p *fakeProducer) reply(t *testing.T, i int) *api.TransformReply {
	t.Helper()
	if i >= len(p.sent) {
		t.Fatalf("only %d replies sent", len(p.sent))
	}
	data, err := p.sent[i].Value.Encode()
	if err != nil {
		t.Fatalf("encoding reply: %v", err)
	}
	var reply api.TransformReply
	if err := json.Unmarshal(data, &reply); err != nil {
		t.Fatalf("decoding reply: %v", err)
	}
	return &reply
}

type fakeSession struct {
	sarama.ConsumerGroupSession
	ctx    context.Context
	marked []int64
}

func (s *fakeSession) Context() context.Context { return s.ctx }

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	sarama.ConsumerGroupClaim
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func newTestConsumer(t *testing.T, producer *fakeProducer) (*Consumer, *memory.Store) {
	t.Helper()
	cfg := catalog.TransformConfig{
		Transformers: []catalog.Transformer{{
			Name:      "Upper",
			Supported: []catalog.SupportedSourceAndTarget{catalog.Pair("text/plain", "text/html", -1, 50)},
		}},
	}
	impls, err := dispatch.NewImplementations(upper{})
	if err != nil {
		t.Fatalf("NewImplementations: %v", err)
	}
	core := dispatch.New(catalog.BuildIndex(cfg, nil), impls, dispatch.WithWorkDir(t.TempDir()))
	store := memory.New(0)

	kc := Config{Brokers: []string{"localhost:9092"}}
	applyDefaults(&kc)
	return newConsumer(kc, core, store, WithProducer(producer)), store
}

func transformRequest(t *testing.T, store *memory.Store, body string) *api.TransformRequest {
	t.Helper()
	ref, err := store.Save(context.Background(), strings.NewReader(body), int64(len(body)), "text/plain")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	size := int64(len(body))
	return &api.TransformRequest{
		RequestID:       "req-1",
		SourceReference: ref,
		SourceMediaType: "text/plain",
		SourceSize:      &size,
		SourceExtension: "txt",
		TargetMediaType: "text/html",
		TargetExtension: "html",
		ClientData:      "client",
		InternalContext: api.InitialiseContext(&api.InternalContext{
			MultiStep: &api.MultiStep{InitialRequestID: "req-1"},
		}),
	}
}

func message(t *testing.T, offset int64, v any, headers ...*sarama.RecordHeader) *sarama.ConsumerMessage {
	t.Helper()
	data, ok := v.([]byte)
	if !ok {
		var err error
		if data, err = json.Marshal(v); err != nil {
			t.Fatalf("Marshal: %v", err)
		}
	}
	return &sarama.ConsumerMessage{Topic: DefaultRequestTopic, Offset: offset, Value: data, Headers: headers}
}

func TestProcess(t *testing.T) {
	producer := &fakeProducer{}
	c, store := newTestConsumer(t, producer)
	req := transformRequest(t, store, "hello")

	if err := c.process(context.Background(), message(t, 1, req)); err != nil {
		t.Fatalf("process: %v", err)
	}

	if len(producer.sent) != 1 {
		t.Fatalf("sent %d replies, want 1", len(producer.sent))
	}
	if producer.sent[0].Topic != DefaultReplyTopic {
		t.Errorf("topic = %q", producer.sent[0].Topic)
	}
	reply := producer.reply(t, 0)
	if reply.Status != api.StatusCreated || reply.RequestID != "req-1" || reply.ClientData != "client" {
		t.Fatalf("reply = %+v", reply)
	}
	rc, err := store.Retrieve(context.Background(), reply.TargetReference)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "HELLO" {
		t.Errorf("target = %q, want HELLO", data)
	}
}

func TestProcessFailureReplies(t *testing.T) {
	producer := &fakeProducer{}
	c, store := newTestConsumer(t, producer)
	req := transformRequest(t, store, "hello")
	req.TargetMediaType = "application/pdf"

	if err := c.process(context.Background(), message(t, 1, req)); err != nil {
		t.Fatalf("process: %v", err)
	}
	reply := producer.reply(t, 0)
	if reply.Status != api.StatusBadRequest {
		t.Errorf("status = %d, want 400", reply.Status)
	}
	if !strings.Contains(reply.ErrorDetails, "No transforms for: text/plain -> application/pdf") {
		t.Errorf("errorDetails = %q", reply.ErrorDetails)
	}
}

func TestReplyTopic(t *testing.T) {
	c, _ := newTestConsumer(t, &fakeProducer{})
	tests := []struct {
		name    string
		headers map[string]string
		ic      *api.InternalContext
		want    string
	}{
		{"default", nil, nil, DefaultReplyTopic},
		{"context", nil, &api.InternalContext{ReplyToDestination: "ctx-topic"}, "ctx-topic"},
		{"header wins", map[string]string{HeaderReplyTo: "hdr-topic"}, &api.InternalContext{ReplyToDestination: "ctx-topic"}, "hdr-topic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.replyTopic(tt.headers, tt.ic); got != tt.want {
				t.Errorf("replyTopic = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMalformedMessages(t *testing.T) {
	producer := &fakeProducer{}
	c, _ := newTestConsumer(t, producer)

	// A wrongly typed field still lets the request id through.
	bad := []byte(`{"requestId": "req-9", "sourceSize": "big", "clientData": "cd"}`)
	if err := c.process(context.Background(), message(t, 1, bad)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(producer.sent) != 1 {
		t.Fatalf("sent %d replies, want 1", len(producer.sent))
	}
	reply := producer.reply(t, 0)
	if reply.Status != api.StatusBadRequest || reply.RequestID != "req-9" || reply.ClientData != "cd" {
		t.Errorf("reply = %+v", reply)
	}

	if err := c.process(context.Background(), message(t, 2, []byte("not json"))); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(producer.sent) != 1 {
		t.Errorf("unreadable message should not be answered")
	}
}

func TestConsumeClaimMarksAfterReply(t *testing.T) {
	producer := &fakeProducer{}
	c, store := newTestConsumer(t, producer)
	req := transformRequest(t, store, "hello")

	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 2)}
	claim.messages <- message(t, 7, req)
	claim.messages <- message(t, 8, []byte("garbage"))
	close(claim.messages)
	sess := &fakeSession{ctx: context.Background()}

	if err := c.ConsumeClaim(sess, claim); err != nil {
		t.Fatalf("ConsumeClaim: %v", err)
	}
	if len(sess.marked) != 2 || sess.marked[0] != 7 || sess.marked[1] != 8 {
		t.Errorf("marked = %v", sess.marked)
	}
}

func TestConsumeClaimStopsWhenReplyFails(t *testing.T) {
	producer := &fakeProducer{err: errors.New("broker down")}
	c, store := newTestConsumer(t, producer)

	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 1)}
	claim.messages <- message(t, 3, transformRequest(t, store, "hello"))
	close(claim.messages)
	sess := &fakeSession{ctx: context.Background()}

	if err := c.ConsumeClaim(sess, claim); err == nil {
		t.Fatal("expected an error")
	}
	if len(sess.marked) != 0 {
		t.Errorf("offset marked despite the failed reply: %v", sess.marked)
	}
}
