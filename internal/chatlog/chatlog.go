// Package chatlog holds the client-local ordered view of received messages.
package chatlog

import (
	"sync"

	"roomchat/internal/domain"
)

// Log is an append-only sequence of received messages. Insertion order is
// arrival order from the channel; there is no reordering and no
// deduplication. Growth is unbounded; switch to a ring buffer if a cap is
// ever needed.
type Log struct {
	mu     sync.RWMutex
	msgs   []domain.ReceivedMessage
	notify func(domain.ReceivedMessage)
}

func New() *Log {
	return &Log{}
}

// OnAppend sets a callback invoked after each append, for UI repaint.
func (l *Log) OnAppend(fn func(domain.ReceivedMessage)) {
	l.mu.Lock()
	l.notify = fn
	l.mu.Unlock()
}

// Append adds one message at the tail. The session's inbound handler is the
// sole writer.
func (l *Log) Append(msg domain.ReceivedMessage) {
	l.mu.Lock()
	l.msgs = append(l.msgs, msg)
	fn := l.notify
	l.mu.Unlock()

	if fn != nil {
		fn(msg)
	}
}

// Messages returns a copy of the log in arrival order.
func (l *Log) Messages() []domain.ReceivedMessage {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.ReceivedMessage, len(l.msgs))
	copy(out, l.msgs)
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.msgs)
}
