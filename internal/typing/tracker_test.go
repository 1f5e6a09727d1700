package typing

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type expiryRecorder struct {
	mu      sync.Mutex
	expired []string
	ch      chan string
}

func newExpiryRecorder() *expiryRecorder {
	return &expiryRecorder{ch: make(chan string, 16)}
}

func (r *expiryRecorder) record(room, username string) {
	r.mu.Lock()
	r.expired = append(r.expired, room+"/"+username)
	r.mu.Unlock()
	r.ch <- room + "/" + username
}

func (r *expiryRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.expired)
}

func TestMarkTypingAutoExpires(t *testing.T) {
	rec := newExpiryRecorder()
	tr := NewTracker(30*time.Millisecond, rec.record)
	defer tr.Close()

	assert.True(t, tr.MarkTyping("general", "alice"))
	assert.True(t, tr.IsTyping("general", "alice"))

	select {
	case got := <-rec.ch:
		assert.Equal(t, "general/alice", got)
	case <-time.After(time.Second):
		t.Fatal("typing state did not expire")
	}
	assert.False(t, tr.IsTyping("general", "alice"))
	assert.Empty(t, tr.ActiveTypers("general", ""))
}

func TestMarkTypingRefreshExtendsDeadline(t *testing.T) {
	rec := newExpiryRecorder()
	tr := NewTracker(80*time.Millisecond, rec.record)
	defer tr.Close()

	assert.True(t, tr.MarkTyping("general", "alice"))
	time.Sleep(50 * time.Millisecond)
	assert.False(t, tr.MarkTyping("general", "alice"), "refresh is not a transition")
	time.Sleep(50 * time.Millisecond)

	// 100ms after the first mark, the refreshed entry is still alive.
	assert.True(t, tr.IsTyping("general", "alice"))
	assert.Equal(t, 0, rec.count())

	select {
	case <-rec.ch:
	case <-time.After(time.Second):
		t.Fatal("refreshed typing state did not expire")
	}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, rec.count(), "stale timer must not fire a second expiry")
}

func TestClearTypingCancelsTimer(t *testing.T) {
	rec := newExpiryRecorder()
	tr := NewTracker(20*time.Millisecond, rec.record)
	defer tr.Close()

	tr.MarkTyping("general", "alice")
	assert.True(t, tr.ClearTyping("general", "alice"))
	assert.False(t, tr.ClearTyping("general", "alice"))

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 0, rec.count())
}

func TestActiveTypersExcludesAsker(t *testing.T) {
	tr := NewTracker(time.Minute, nil)
	defer tr.Close()

	tr.MarkTyping("general", "carol")
	tr.MarkTyping("general", "alice")
	tr.MarkTyping("general", "bob")
	tr.MarkTyping("other", "dave")

	assert.Equal(t, []string{"alice", "carol"}, tr.ActiveTypers("general", "bob"))
	assert.Equal(t, []string{"alice", "bob", "carol"}, tr.ActiveTypers("general", ""))
	assert.Equal(t, []string{"dave"}, tr.ActiveTypers("other", "bob"))
}

func TestCloseStopsTimersAndIgnoresMarks(t *testing.T) {
	rec := newExpiryRecorder()
	tr := NewTracker(20*time.Millisecond, rec.record)

	tr.MarkTyping("general", "alice")
	tr.Close()
	assert.False(t, tr.MarkTyping("general", "bob"))

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 0, rec.count())
	assert.Empty(t, tr.ActiveTypers("general", ""))
}

func TestDefaultTimeout(t *testing.T) {
	tr := NewTracker(0, nil)
	defer tr.Close()
	require.Equal(t, DefaultTimeout, tr.timeout)
}
