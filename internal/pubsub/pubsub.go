// Package pubsub provides the event fan-out used to notify UI shells of job
// state changes without coupling them to the pipeline's goroutines.
package pubsub

import "sync"

const DefaultSubscriberBufSize = 64

// A Subscription receives values published after Subscribe was called. Slow
// subscribers that let their buffer fill drop the oldest pending deliveries
// rather than blocking the publisher.
type Subscription[T any] struct {
	pub *Publisher[T]
	ch  chan T
}

// Receive returns the channel of delivered values. The channel is closed when
// either the subscription or the publisher is closed.
func (s *Subscription[T]) Receive() <-chan T {
	return s.ch
}

// Close detaches the subscription from its publisher. Idempotent.
func (s *Subscription[T]) Close() {
	s.pub.unsubscribe(s)
}

// Publisher fans values out to any number of subscribers.
type Publisher[T any] struct {
	mu     sync.Mutex
	subs   map[*Subscription[T]]struct{}
	closed bool
}

func NewPublisher[T any]() *Publisher[T] {
	return &Publisher[T]{subs: make(map[*Subscription[T]]struct{})}
}

// Subscribe registers a new subscriber. Returns nil if the publisher is closed.
func (p *Publisher[T]) Subscribe() *Subscription[T] {
	return p.SubscribeBufSize(DefaultSubscriberBufSize)
}

func (p *Publisher[T]) SubscribeBufSize(bufSize int) *Subscription[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	s := &Subscription[T]{pub: p, ch: make(chan T, bufSize)}
	p.subs[s] = struct{}{}
	return s
}

// Send delivers the value to every current subscriber without blocking. For a
// subscriber with a full buffer, the oldest pending value is discarded to make
// room. Reports false if the publisher is closed.
func (p *Publisher[T]) Send(v T) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	for s := range p.subs {
		for {
			select {
			case s.ch <- v:
			default:
				select {
				case <-s.ch:
				default:
				}
				continue
			}
			break
		}
	}
	return true
}

// Close shuts down the publisher and all subscribers. Idempotent.
func (p *Publisher[T]) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for s := range p.subs {
		close(s.ch)
		delete(p.subs, s)
	}
}

func (p *Publisher[T]) unsubscribe(s *Subscription[T]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.subs[s]; !ok {
		return
	}
	delete(p.subs, s)
	close(s.ch)
}
