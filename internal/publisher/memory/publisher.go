// Package memory records published notifications for tests and dry runs.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"sync"

	"github.com/JakeFAU/edge-sitemaps/internal/publisher"
)

// Message is one recorded publish.
type Message struct {
	Topic      string
	Data       []byte
	Attributes map[string]string
}

// Publisher keeps every publish in order.
type Publisher struct {
	mu       sync.RWMutex
	messages []Message
	err      error
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// FailWith makes subsequent publishes return err.
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Publish encodes payload as JSON and records it.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	msg := Message{Topic: topic, Data: data}
	if a, ok := payload.(publisher.Attributer); ok {
		msg.Attributes = maps.Clone(a.Attributes())
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.messages = append(p.messages, msg)
	return fmt.Sprintf("memory-%d", len(p.messages)), nil
}

// Messages returns a copy of the recorded publishes.
func (p *Publisher) Messages() []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}
