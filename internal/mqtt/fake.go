package mqtt

import (
	"sync"
)

// FakeClient records publishes and lets tests inject inbound messages.
type FakeClient struct {
	mu sync.Mutex

	// Published holds every publish in order.
	Published []PublishedMessage

	// PublishError, if set, is returned by Publish.
	PublishError error

	// Closed tracks whether Close was called.
	Closed bool

	handlers map[string]Handler
}

// PublishedMessage is one recorded publish.
type PublishedMessage struct {
	Topic   string
	Payload []byte
}

// NewFakeClient creates a FakeClient for tests.
func NewFakeClient() *FakeClient {
	return &FakeClient{handlers: make(map[string]Handler)}
}

// Subscribe stores the handler keyed by filter.
func (f *FakeClient) Subscribe(topic string, h Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = h
	return nil
}

// Publish records the message.
func (f *FakeClient) Publish(topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Published = append(f.Published, PublishedMessage{
		Topic:   topic,
		Payload: append([]byte(nil), payload...),
	})
	return nil
}

// Close marks the client closed.
func (f *FakeClient) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
}

// Deliver feeds an inbound message to every registered handler, as the
// broker would for a matching filter.
func (f *FakeClient) Deliver(topic string, payload []byte) {
	f.mu.Lock()
	handlers := make([]Handler, 0, len(f.handlers))
	for _, h := range f.handlers {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()

	for _, h := range handlers {
		h(topic, payload)
	}
}

// PublishedTo returns the payloads published to one topic, in order.
func (f *FakeClient) PublishedTo(topic string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]byte
	for _, m := range f.Published {
		if m.Topic == topic {
			out = append(out, m.Payload)
		}
	}
	return out
}

// Reset clears recorded traffic.
func (f *FakeClient) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Published = nil
	f.PublishError = nil
	f.Closed = false
}
