// Package notify implements the intra-process pub/sub bus that couples
// writer-side pool creation to reader-side enrichment (spec §4.9).
// Each subscriber receives a payload at most once: it is queued on that
// subscriber's 256-slot channel, and when the channel is full the
// delivery is dropped with a warning log and never redelivered. Each
// subscription runs on its own worker goroutine so a slow handler never
// blocks publishers,
// mirroring the teacher's websocket.Hub pattern of a dedicated channel
// per registered party instead of a single shared callback list.
package notify

import (
	"sync"

	"go.uber.org/zap"

	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/model"
)

// Handler processes one payload delivered on a topic.
type Handler func(model.NotifyPayload)

const subscriberBuffer = 256

type subscription struct {
	ch      chan model.NotifyPayload
	handler Handler
}

// Bus is a topic -> []subscription broker.
type Bus struct {
	log *zap.Logger

	mu   sync.RWMutex
	subs map[string][]*subscription

	mirror MirrorSink
}

// MirrorSink optionally duplicates a publish to a durable, cross-process
// channel. A nil MirrorSink disables mirroring entirely (spec design
// note: "add a durable sink only if cross-process fan-out is needed").
type MirrorSink interface {
	Mirror(topic string, payload model.NotifyPayload)
}

// New creates an empty Bus. Pass a non-nil mirror to additionally
// publish every message to a durable sink (see notify.KafkaMirror).
func New(log *zap.Logger, mirror MirrorSink) *Bus {
	return &Bus{
		log:  log,
		subs: make(map[string][]*subscription),
		mirror: mirror,
	}
}

// Publish delivers payload to every subscriber of topic. Publish never
// blocks on a slow subscriber: each subscription has its own buffered
// channel and worker; a full channel drops the delivery for that one
// subscriber, logs a warning, and does not retry it.
func (b *Bus) Publish(topic string, data interface{}) {
	payload := model.NotifyPayload{Topic: topic, Data: data}

	b.mu.RLock()
	subs := append([]*subscription(nil), b.subs[topic]...)
	b.mu.RUnlock()

	for _, s := range subs {
		select {
		case s.ch <- payload:
		default:
			b.log.Warn("notify: subscriber channel full, dropping delivery",
				zap.String("topic", topic))
		}
	}

	if b.mirror != nil {
		b.mirror.Mirror(topic, payload)
	}
}

// Listen registers handler to run, on its own worker goroutine, for
// every payload published to topic. Listen returns an Unsubscribe
// function.
func (b *Bus) Listen(topic string, handler Handler) (unsubscribe func()) {
	sub := &subscription{
		ch:      make(chan model.NotifyPayload, subscriberBuffer),
		handler: handler,
	}

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		for {
			select {
			case payload := <-sub.ch:
				b.runHandler(topic, sub, payload)
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[topic]
		for i, s := range list {
			if s == sub {
				b.subs[topic] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
}

func (b *Bus) runHandler(topic string, sub *subscription, payload model.NotifyPayload) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("notify: handler panicked",
				zap.String("topic", topic), zap.Any("recover", r))
		}
	}()
	sub.handler(payload)
}
