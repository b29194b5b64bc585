package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type channelStub struct {
	declared   []string
	published  []amqp091.Publishing
	keys       []string
	declareErr error
	publishErr error
	closed     bool
}

func (c *channelStub) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error {
	if c.declareErr != nil {
		return c.declareErr
	}
	c.declared = append(c.declared, name+"/"+kind)
	return nil
}

func (c *channelStub) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	if c.publishErr != nil {
		return c.publishErr
	}
	c.keys = append(c.keys, exchange+":"+key)
	c.published = append(c.published, msg)
	return nil
}

func (c *channelStub) Close() error {
	c.closed = true
	return nil
}

func newTestProducer(ch *channelStub) *EventProducer {
	return &EventProducer{
		channel:  ch,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		declared: make(map[string]bool),
	}
}

func TestPublish_DeclaresExchangeOnceAndSendsPersistentJSON(t *testing.T) {
	ch := &channelStub{}
	p := newTestProducer(ch)
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx, "membership_events", "member.expired", map[string]int64{"member_id": 7}))
	require.NoError(t, p.Publish(ctx, "membership_events", "member.status_changed", map[string]int64{"member_id": 8}))

	assert.Equal(t, []string{"membership_events/topic"}, ch.declared)
	assert.Equal(t, []string{"membership_events:member.expired", "membership_events:member.status_changed"}, ch.keys)
	require.Len(t, ch.published, 2)

	msg := ch.published[0]
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp091.Persistent, msg.DeliveryMode)
	assert.NotEmpty(t, msg.MessageId)
	assert.NotEqual(t, msg.MessageId, ch.published[1].MessageId)

	var body map[string]int64
	require.NoError(t, json.Unmarshal(msg.Body, &body))
	assert.Equal(t, int64(7), body["member_id"])

	p.Close()
	assert.True(t, ch.closed)
}

func TestPublish_RetriesDeclareAfterFailure(t *testing.T) {
	ch := &channelStub{declareErr: errors.New("channel closed")}
	p := newTestProducer(ch)

	err := p.Publish(context.Background(), "membership_events", "member.expired", struct{}{})
	assert.ErrorContains(t, err, "declare exchange membership_events")
	assert.Empty(t, ch.published)

	ch.declareErr = nil
	require.NoError(t, p.Publish(context.Background(), "membership_events", "member.expired", struct{}{}))
	assert.Len(t, ch.declared, 1)
}

func TestPublish_Errors(t *testing.T) {
	p := newTestProducer(&channelStub{})
	err := p.Publish(context.Background(), "membership_events", "member.expired", make(chan int))
	assert.ErrorContains(t, err, "marshal member.expired event")

	p = newTestProducer(&channelStub{publishErr: errors.New("connection reset")})
	err = p.Publish(context.Background(), "membership_events", "member.expired", struct{}{})
	assert.ErrorContains(t, err, "connection reset")
}
