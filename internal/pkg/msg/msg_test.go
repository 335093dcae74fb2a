package msg

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"gotest.tools/v3/assert"
)

func newPID(t *testing.T) uuid.UUID {
	t.Helper()
	pid, err := uuid.NewUUID()
	assert.NilError(t, err)
	return pid
}

func TestSubscribe(t *testing.T) {
	pidPub := newPID(t)
	pubsub := NewPublisher(pidPub)

	ch1, err := pubsub.Subscribe(newPID(t), Status)
	assert.NilError(t, err)
	ch2, err := pubsub.Subscribe(newPID(t), Status)
	assert.NilError(t, err)

	randValue := rand.New(rand.NewSource(time.Now().UnixNano())).Float64()
	pubsub.Publish(Status, randValue)

	for _, ch := range []<-chan Msg{ch1, ch2} {
		select {
		case incoming := <-ch:
			assert.Equal(t, incoming.Payload(), randValue)
			assert.Equal(t, incoming.PID(), pidPub)
			assert.Equal(t, incoming.Topic(), Status)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the published value")
		}
	}
}

func TestSubscribeTopics(t *testing.T) {
	pubsub := NewPublisher(newPID(t))
	pid := newPID(t)
	chStatus, err := pubsub.Subscribe(pid, Status)
	assert.NilError(t, err)
	chConfig, err := pubsub.Subscribe(pid, Config)
	assert.NilError(t, err)

	pubsub.Publish(Config, "topology")
	assert.Equal(t, (<-chConfig).Payload(), "topology")
	assert.Equal(t, len(chStatus), 0)

	_, err = pubsub.Subscribe(pid, Topic(9))
	assert.Assert(t, errors.Is(err, ErrUnknownTopic))
}

func TestUnsubscribe(t *testing.T) {
	pubsub := NewPublisher(newPID(t))
	pid := newPID(t)
	ch, err := pubsub.Subscribe(pid, Status)
	assert.NilError(t, err)

	pubsub.Unsubscribe(pid)
	_, ok := <-ch
	assert.Assert(t, !ok)

	// publishing to nobody is fine
	pubsub.Publish(Status, 1)
	pubsub.Unsubscribe(pid)
}

func TestPublishNeverBlocks(t *testing.T) {
	pubsub := NewPublisher(newPID(t))
	ch, err := pubsub.Subscribe(newPID(t), Status)
	assert.NilError(t, err)

	for i := 0; i < subscriberBuffer*4; i++ {
		pubsub.Publish(Status, i)
	}
	assert.Equal(t, len(ch), subscriberBuffer)
	assert.Equal(t, (<-ch).Payload(), 0)
}
