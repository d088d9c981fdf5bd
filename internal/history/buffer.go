// Package history keeps the last few messages each member sent in each chat,
// so that a moderation decision can be audited with the context that led to
// it.
package history

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MaxBufferMessages is the number of recent messages retained per member.
const MaxBufferMessages = 5

// Entry is a single message stored in the ring buffer.
type Entry struct {
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
	Ts        int64  `json:"ts"`
}

// Buffer stores the last N messages per (chat, member) in memory. It is
// goroutine-safe and uses a ring buffer per key; keys are held in an LRU so
// idle members age out after the configured TTL.
type Buffer struct {
	mu      sync.Mutex
	buffers *expirable.LRU[string, *ringBuffer]
}

// ringBuffer is a fixed-size circular buffer of Entry.
type ringBuffer struct {
	items []Entry
	pos   int
	count int
}

// NewBuffer creates an empty Buffer holding at most capacity members, each
// forgotten after ttl without a new message. Zero disables either bound.
func NewBuffer(capacity int, ttl time.Duration) *Buffer {
	return &Buffer{
		buffers: expirable.NewLRU[string, *ringBuffer](capacity, nil, ttl),
	}
}

func bufferKey(chatID, userID int64) string {
	return fmt.Sprintf("%d:%d", chatID, userID)
}

// Add appends a message to the member's ring buffer. If the buffer is full,
// the oldest message is overwritten.
func (b *Buffer) Add(chatID, userID int64, e Entry) {
	k := bufferKey(chatID, userID)

	b.mu.Lock()
	defer b.mu.Unlock()

	rb, ok := b.buffers.Get(k)
	if !ok {
		rb = &ringBuffer{
			items: make([]Entry, MaxBufferMessages),
		}
	}

	rb.items[rb.pos] = e
	rb.pos = (rb.pos + 1) % MaxBufferMessages
	if rb.count < MaxBufferMessages {
		rb.count++
	}
	b.buffers.Add(k, rb)
}

// Get returns the member's last N messages in chronological order (oldest
// first). Returns an empty slice if nothing is buffered.
func (b *Buffer) Get(chatID, userID int64) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	rb, ok := b.buffers.Peek(bufferKey(chatID, userID))
	if !ok {
		return []Entry{}
	}

	result := make([]Entry, rb.count)
	// The oldest message is at position (pos - count) mod MaxBufferMessages.
	start := (rb.pos - rb.count + MaxBufferMessages) % MaxBufferMessages
	for i := 0; i < rb.count; i++ {
		result[i] = rb.items[(start+i)%MaxBufferMessages]
	}
	return result
}

// Remove deletes the member's buffer.
func (b *Buffer) Remove(chatID, userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buffers.Remove(bufferKey(chatID, userID))
}

// Len returns the number of members with buffered messages.
func (b *Buffer) Len() int {
	return b.buffers.Len()
}
