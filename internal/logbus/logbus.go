// Package logbus fans a stream of log lines out to subscribers, the
// same role the teacher's SubscribeLogs/UnsubscribeLogs/broadcastLogs
// trio plays in internal/engine, reshaped as an io.Writer so it plugs
// directly into a zerolog.MultiLevelWriter instead of needing its own
// log call sites.
package logbus

import "sync"

// Bus distributes every Write to it to all current subscribers. It
// implements io.Writer so it can be one leg of a
// zerolog.MultiLevelWriter alongside the process's normal stdout sink.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan []byte
}

// New builds an empty Bus.
func New() *Bus {
	return &Bus{subscribers: make(map[string]chan []byte)}
}

// Write implements io.Writer. A slow or absent subscriber never blocks
// the logger: delivery is best-effort, matching the teacher's
// "skip if subscriber channel is full" behavior.
func (b *Bus) Write(p []byte) (int, error) {
	line := make([]byte, len(p))
	copy(line, p)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- line:
		default:
		}
	}
	return len(p), nil
}

// Subscribe registers a new listener under id and returns its channel.
func (b *Bus) Subscribe(id string) <-chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan []byte, 100)
	b.subscribers[id] = ch
	return ch
}

// Unsubscribe removes and closes a listener's channel.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
}
