// Package bus is an in-process publish/subscribe hub for data-change
// notifications. Delivery is synchronous and fire-and-forget.
package bus

import (
	"fmt"
	"sync"

	appLog "studycal/internal/log"
)

type Topic string

const (
	TopicTaskCreated  Topic = "taskCreated"
	TopicTaskDeleted  Topic = "taskDeleted"
	TopicEventCreated Topic = "eventCreated"
	TopicEventDeleted Topic = "eventDeleted"
	TopicDataRefresh  Topic = "dataRefresh"

	// All subscribes to every topic.
	All Topic = "*"
)

// Topics lists the concrete topics in publish order of importance.
var Topics = []Topic{TopicTaskCreated, TopicTaskDeleted, TopicEventCreated, TopicEventDeleted, TopicDataRefresh}

// Message is one notification. Payload carries small identifiers only.
type Message struct {
	Topic   Topic             `json:"topic"`
	UserID  string            `json:"user_id"`
	Payload map[string]string `json:"payload,omitempty"`
}

type Handler func(Message)

// Publisher is the publishing half of a Bus.
type Publisher interface {
	Publish(Message)
}

type subscription struct {
	id    uint64
	topic Topic
	fn    Handler
}

// Bus fans a message out to every handler subscribed to its topic or to All.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
}

func New() *Bus {
	return &Bus{}
}

// Subscribe registers fn and returns a function that removes it.
func (b *Bus) Subscribe(topic Topic, fn Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, topic: topic, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish delivers msg to matching handlers in subscription order. A
// panicking handler is logged and does not stop the others.
func (b *Bus) Publish(msg Message) {
	b.mu.RLock()
	targets := make([]subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.topic == All || s.topic == msg.Topic {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	appLog.Debug("bus publish", "topic", msg.Topic, "user", msg.UserID, "handlers", len(targets))
	for _, s := range targets {
		deliver(s, msg)
	}
}

func deliver(s subscription, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			appLog.Error("bus handler panicked", fmt.Errorf("%v", r), "topic", msg.Topic, "subscription", s.id)
		}
	}()
	s.fn(msg)
}

// Len reports the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
