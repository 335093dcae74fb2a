package msg

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Topic is the class of a published message.
type Topic int

const (
	// Status carries the electrical snapshot of a tick.
	Status Topic = iota
	// Config carries the topology of the network.
	Config
)

func (t Topic) String() string {
	switch t {
	case Status:
		return "status"
	case Config:
		return "config"
	}
	return "unknown"
}

// ErrUnknownTopic is returned when subscribing to a topic that does not exist.
var ErrUnknownTopic = errors.New("unknown topic")

// Publisher is an interface for objects that allow subscription to their events
type Publisher interface {
	Subscribe(uuid.UUID, Topic) (<-chan Msg, error)
	Unsubscribe(uuid.UUID)
}

// Msg is a published payload tagged with its sender and topic.
type Msg struct {
	sender  uuid.UUID
	topic   Topic
	payload interface{}
}

// New is the Msg factory function
func New(sender uuid.UUID, topic Topic, payload interface{}) Msg {
	return Msg{sender, topic, payload}
}

// PID returns the sender's PID
func (v Msg) PID() uuid.UUID {
	return v.sender
}

// Topic returns the message topic
func (v Msg) Topic() Topic {
	return v.topic
}

// Payload returns the message data
func (v Msg) Payload() interface{} {
	return v.payload
}

// subscriberBuffer is the depth of each subscriber channel. A subscriber that
// falls further behind misses messages instead of stalling the publisher.
const subscriberBuffer = 8

// PubSub fans out messages to the subscribers of each topic.
type PubSub struct {
	mux         *sync.Mutex
	pid         uuid.UUID
	subscribers map[Topic]map[uuid.UUID]chan Msg
}

// NewPublisher returns a PubSub publishing under pid.
func NewPublisher(pid uuid.UUID) *PubSub {
	return &PubSub{
		mux: &sync.Mutex{},
		pid: pid,
		subscribers: map[Topic]map[uuid.UUID]chan Msg{
			Status: make(map[uuid.UUID]chan Msg),
			Config: make(map[uuid.UUID]chan Msg),
		},
	}
}

// PID returns the publisher's PID
func (p *PubSub) PID() uuid.UUID {
	return p.pid
}

// Subscribe returns a channel on which the topic is broadcast. Subscribing
// twice with the same pid returns the existing channel.
func (p *PubSub) Subscribe(pid uuid.UUID, topic Topic) (<-chan Msg, error) {
	p.mux.Lock()
	defer p.mux.Unlock()
	subs, ok := p.subscribers[topic]
	if !ok {
		return nil, ErrUnknownTopic
	}
	if ch, ok := subs[pid]; ok {
		return ch, nil
	}
	ch := make(chan Msg, subscriberBuffer)
	subs[pid] = ch
	return ch, nil
}

// Unsubscribe removes pid from every topic and closes its channels.
func (p *PubSub) Unsubscribe(pid uuid.UUID) {
	p.mux.Lock()
	defer p.mux.Unlock()
	for _, subs := range p.subscribers {
		if ch, ok := subs[pid]; ok {
			close(ch)
			delete(subs, pid)
		}
	}
}

// Publish broadcasts payload on topic under the publisher's PID.
func (p *PubSub) Publish(topic Topic, payload interface{}) {
	p.Forward(New(p.pid, topic, payload))
}

// Forward broadcasts m unchanged. Delivery never blocks.
func (p *PubSub) Forward(m Msg) {
	p.mux.Lock()
	defer p.mux.Unlock()
	for _, ch := range p.subscribers[m.topic] {
		select {
		case ch <- m:
		default:
		}
	}
}

// Close unsubscribes everyone.
func (p *PubSub) Close() {
	p.mux.Lock()
	defer p.mux.Unlock()
	for _, subs := range p.subscribers {
		for pid, ch := range subs {
			close(ch)
			delete(subs, pid)
		}
	}
}
