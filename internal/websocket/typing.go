package chatws

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type typingKey struct {
	userID        uuid.UUID
	counterpartID uuid.UUID
}

type typingEntry struct {
	timer *time.Timer
}

// TypingState tracks who is typing to whom. With a positive ttl, a flag not
// refreshed in time expires on its own and the expiry callback fires once.
type TypingState struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[typingKey]*typingEntry
}

func NewTypingState(ttl time.Duration) *TypingState {
	return &TypingState{
		ttl:     ttl,
		entries: make(map[typingKey]*typingEntry),
	}
}

// Start sets or refreshes the flag for the pair.
func (t *TypingState) Start(userID, counterpartID uuid.UUID, onExpire func()) {
	key := typingKey{userID: userID, counterpartID: counterpartID}
	entry := &typingEntry{}

	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.entries[key]; ok && prev.timer != nil {
		prev.timer.Stop()
	}
	t.entries[key] = entry

	if t.ttl > 0 {
		entry.timer = time.AfterFunc(t.ttl, func() {
			if t.expire(key, entry) && onExpire != nil {
				onExpire()
			}
		})
	}
}

// Stop clears the flag and reports whether it was set.
func (t *TypingState) Stop(userID, counterpartID uuid.UUID) bool {
	key := typingKey{userID: userID, counterpartID: counterpartID}

	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[key]
	if !ok {
		return false
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}
	delete(t.entries, key)
	return true
}

// ClearUser drops every flag set by userID and returns the counterparts affected.
func (t *TypingState) ClearUser(userID uuid.UUID) []uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()

	var counterparts []uuid.UUID
	for key, entry := range t.entries {
		if key.userID != userID {
			continue
		}
		if entry.timer != nil {
			entry.timer.Stop()
		}
		delete(t.entries, key)
		counterparts = append(counterparts, key.counterpartID)
	}
	return counterparts
}

func (t *TypingState) IsTyping(userID, counterpartID uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[typingKey{userID: userID, counterpartID: counterpartID}]
	return ok
}

// expire removes the entry only if it has not been replaced or cleared since it was armed.
func (t *TypingState) expire(key typingKey, entry *typingEntry) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if current, ok := t.entries[key]; !ok || current != entry {
		return false
	}
	delete(t.entries, key)
	return true
}
