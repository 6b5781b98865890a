// Package eventbus is an in-process publish/subscribe bus for voice events.
//
// Publishers (the Discord bridge, or tests) call PublishVoiceState and
// PublishVoiceServer; subscribers receive every event synchronously on the
// publisher's goroutine and must not block.
package eventbus

import (
	"sync"

	"github.com/glizzus/voicelink/internal/voice"
)

type topic[E any] struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[uint64]func(E)
}

func newTopic[E any]() *topic[E] {
	return &topic[E]{handlers: make(map[uint64]func(E))}
}

func (t *topic[E]) subscribe(fn func(E)) func() {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.handlers[id] = fn
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.handlers, id)
			t.mu.Unlock()
		})
	}
}

func (t *topic[E]) publish(e E) {
	t.mu.RLock()
	handlers := make([]func(E), 0, len(t.handlers))
	for _, fn := range t.handlers {
		handlers = append(handlers, fn)
	}
	t.mu.RUnlock()

	for _, fn := range handlers {
		fn(e)
	}
}

func (t *topic[E]) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.handlers)
}

// Bus implements voice.EventBus.
type Bus struct {
	states  *topic[voice.VoiceStateEvent]
	servers *topic[voice.VoiceServerEvent]

	closeOnce sync.Once
	done      chan struct{}
}

func New() *Bus {
	return &Bus{
		states:  newTopic[voice.VoiceStateEvent](),
		servers: newTopic[voice.VoiceServerEvent](),
		done:    make(chan struct{}),
	}
}

var _ voice.EventBus = (*Bus)(nil)

func (b *Bus) SubscribeVoiceState(fn func(voice.VoiceStateEvent)) func() {
	return b.states.subscribe(fn)
}

func (b *Bus) SubscribeVoiceServer(fn func(voice.VoiceServerEvent)) func() {
	return b.servers.subscribe(fn)
}

// PublishVoiceState delivers e to current subscribers. It is a no-op after Close.
func (b *Bus) PublishVoiceState(e voice.VoiceStateEvent) {
	if b.closed() {
		return
	}
	b.states.publish(e)
}

// PublishVoiceServer delivers e to current subscribers. It is a no-op after Close.
func (b *Bus) PublishVoiceServer(e voice.VoiceServerEvent) {
	if b.closed() {
		return
	}
	b.servers.publish(e)
}

func (b *Bus) Done() <-chan struct{} {
	return b.done
}

// Close ends the stream. Pending waits observe voice.ErrEventStreamClosed.
func (b *Bus) Close() {
	b.closeOnce.Do(func() { close(b.done) })
}

// Subscribers reports how many handlers are registered across both topics.
func (b *Bus) Subscribers() int {
	return b.states.len() + b.servers.len()
}

func (b *Bus) closed() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}
