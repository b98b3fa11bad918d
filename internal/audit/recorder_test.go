// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// captureStore collects inserted entries. An optional gate blocks Insert
// until released so tests can hold the consumer in place.
type captureStore struct {
	mu      sync.Mutex
	entries []Entry
	gate    chan struct{}
	fail    error
}

func (s *captureStore) Insert(_ context.Context, entry Entry) error {
	if s.gate != nil {
		<-s.gate
	}
	if s.fail != nil {
		return s.fail
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *captureStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *captureStore) last() Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[len(s.entries)-1]
}

func TestLog_RecordPersistsEntries(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &captureStore{}
	log := NewLog(store, nil)

	userID := ulid.Make()
	log.Record(context.Background(), &userID, ActionLogin, "successful login", "203.0.113.9", "agent")

	require.Eventually(t, func() bool { return store.count() == 1 },
		time.Second, 5*time.Millisecond)

	entry := store.last()
	assert.Equal(t, ActionLogin, entry.Action)
	assert.Equal(t, "successful login", entry.Detail)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, userID, *entry.UserID)
	assert.False(t, entry.ID.Compare(ulid.ULID{}) == 0, "entry gets its own ID")
	assert.False(t, entry.CreatedAt.IsZero())

	require.NoError(t, log.Close())
}

func TestLog_RecordWithoutUser(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &captureStore{}
	log := NewLog(store, nil)

	log.Record(context.Background(), nil, ActionLoginFailed, "failed login attempt for email: ghost@example.com", "ip", "agent")

	require.Eventually(t, func() bool { return store.count() == 1 },
		time.Second, 5*time.Millisecond)
	assert.Nil(t, store.last().UserID)

	require.NoError(t, log.Close())
}

func TestLog_CloseDrainsBuffer(t *testing.T) {
	defer goleak.VerifyNone(t)

	gate := make(chan struct{})
	store := &captureStore{gate: gate}
	log := NewLog(store, nil)

	for range 10 {
		log.Record(context.Background(), nil, ActionLogout, "detail", "ip", "agent")
	}

	close(gate)
	require.NoError(t, log.Close())

	assert.Equal(t, 10, store.count(), "Close must drain everything buffered")
}

func TestLog_FullBufferDropsInsteadOfBlocking(t *testing.T) {
	defer goleak.VerifyNone(t)

	gate := make(chan struct{})
	store := &captureStore{gate: gate}
	log := NewLog(store, nil)

	// Park the consumer inside one Insert, then fill the buffer.
	log.Record(context.Background(), nil, ActionLogin, "in flight", "ip", "agent")
	require.Eventually(t, func() bool { return len(log.entries) == 0 },
		time.Second, time.Millisecond, "consumer should pick up the in-flight entry")

	deadline := time.Now().Add(2 * time.Second)
	for len(log.entries) < bufferSize {
		log.Record(context.Background(), nil, ActionLogin, "buffered", "ip", "agent")
		if time.Now().After(deadline) {
			t.Fatal("could not fill the audit buffer")
		}
	}

	// Buffer is full and the consumer is blocked: this one must be
	// dropped immediately, not block the caller.
	done := make(chan struct{})
	go func() {
		log.Record(context.Background(), nil, ActionLogin, "dropped", "ip", "agent")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a full buffer")
	}

	close(gate)
	require.NoError(t, log.Close())

	assert.LessOrEqual(t, store.count(), bufferSize+1, "dropped entry must not be written")
}

func TestLog_StoreFailureDoesNotSurface(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &captureStore{fail: errors.New("insert failed")}
	log := NewLog(store, nil)

	// Record never reports the store's failure to the caller.
	log.Record(context.Background(), nil, ActionLogin, "detail", "ip", "agent")

	require.NoError(t, log.Close())
}

func TestNopRecorder(t *testing.T) {
	NopRecorder{}.Record(context.Background(), nil, ActionLogin, "detail", "ip", "agent")
}
