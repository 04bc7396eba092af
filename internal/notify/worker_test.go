package notify

import (
	"context"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventloom/ticketpay/internal/observability"
)

type fakeAck struct {
	acks    int
	nacks   int
	requeue bool
}

func (f *fakeAck) Ack(tag uint64, multiple bool) error { f.acks++; return nil }
func (f *fakeAck) Nack(tag uint64, multiple, requeue bool) error {
	f.nacks++
	f.requeue = requeue
	return nil
}
func (f *fakeAck) Reject(tag uint64, requeue bool) error { return nil }

type fakeSource struct {
	deliveries chan amqp.Delivery
	err        error
}

func (f *fakeSource) Consume(ctx context.Context) (<-chan amqp.Delivery, error) {
	return f.deliveries, f.err
}

func TestHandle_AcksSettledEvent(t *testing.T) {
	w := NewWorker(nil, observability.NewNopLogger())
	ack := &fakeAck{}

	w.handle(amqp.Delivery{
		Acknowledger: ack,
		RoutingKey:   "payment.settled",
		MessageId:    "dedupe-1",
		Body:         []byte(`{"attendee_id":"a1","amount":1000}`),
	})

	assert.Equal(t, 1, ack.acks)
	assert.Equal(t, 0, ack.nacks)
}

func TestHandle_DropsMalformedEventWithoutRequeue(t *testing.T) {
	w := NewWorker(nil, observability.NewNopLogger())
	ack := &fakeAck{}

	w.handle(amqp.Delivery{
		Acknowledger: ack,
		RoutingKey:   "payment.settled",
		Body:         []byte(`not json`),
	})

	assert.Equal(t, 0, ack.acks)
	assert.Equal(t, 1, ack.nacks)
	assert.False(t, ack.requeue, "a poison message must not be requeued")
}

func TestRun_DrainsUntilSourceCloses(t *testing.T) {
	ack := &fakeAck{}
	deliveries := make(chan amqp.Delivery, 2)
	deliveries <- amqp.Delivery{Acknowledger: ack, RoutingKey: "payment.settled", Body: []byte(`{}`)}
	deliveries <- amqp.Delivery{Acknowledger: ack, RoutingKey: "payment.failed", Body: []byte(`{"reason":"expired"}`)}
	close(deliveries)

	w := NewWorker(&fakeSource{deliveries: deliveries}, observability.NewNopLogger())
	require.NoError(t, w.Run(context.Background()))

	assert.Equal(t, 2, ack.acks)
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := NewWorker(&fakeSource{deliveries: make(chan amqp.Delivery)}, observability.NewNopLogger())
	assert.ErrorIs(t, w.Run(ctx), context.Canceled)
}
