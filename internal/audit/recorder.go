// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

// Package audit provides best-effort activity logging for security events.
// Recording never blocks or fails the operation it is attached to: a full
// buffer or a failing store drops the entry, increments a counter, and logs.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Action tags recorded by the auth core.
const (
	ActionLogin         = "login"
	ActionLoginFailed   = "login_failed"
	ActionLogout        = "logout"
	ActionResetRequest  = "password_reset_request"
	ActionResetComplete = "password_reset_complete"
)

// Entry is one immutable activity log fact. UserID is nil for events
// against unknown identities, such as failed logins.
type Entry struct {
	ID        ulid.ULID
	UserID    *ulid.ULID
	Action    string
	Detail    string
	IPAddress string
	UserAgent string
	CreatedAt time.Time
}

// Store persists audit entries.
type Store interface {
	Insert(ctx context.Context, entry Entry) error
}

// Recorder accepts audit entries.
type Recorder interface {
	// Record appends an entry. Best effort: implementations must never
	// return the store's failure to the caller.
	Record(ctx context.Context, userID *ulid.ULID, action, detail, ipAddress, userAgent string)
}

var (
	droppedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "turnstile_audit_dropped_total",
		Help: "Total number of audit entries dropped because the buffer was full",
	})

	failuresCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turnstile_audit_failures_total",
		Help: "Total number of audit write failures",
	}, []string{"reason"})
)

const bufferSize = 1000

// Log buffers entries on a channel drained by a background goroutine.
type Log struct {
	store    Store
	logger   *slog.Logger
	entries  chan Entry
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewLog creates a Log writing to store. The logger may be nil, in which
// case slog.Default is used.
func NewLog(store Store, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}

	l := &Log{
		store:    store,
		logger:   logger,
		entries:  make(chan Entry, bufferSize),
		stopChan: make(chan struct{}),
	}

	l.wg.Add(1)
	go l.consume()

	return l
}

// Record appends an entry. Never blocks: if the buffer is full the entry
// is dropped and counted.
func (l *Log) Record(_ context.Context, userID *ulid.ULID, action, detail, ipAddress, userAgent string) {
	entry := Entry{
		ID:        ulid.Make(),
		UserID:    userID,
		Action:    action,
		Detail:    detail,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		CreatedAt: time.Now(),
	}

	select {
	case l.entries <- entry:
	default:
		droppedCounter.Inc()
		l.logger.Warn("audit buffer full, entry dropped", "action", action)
	}
}

func (l *Log) consume() {
	defer l.wg.Done()

	for {
		select {
		case entry := <-l.entries:
			l.write(entry)
		case <-l.stopChan:
			l.drain()
			return
		}
	}
}

func (l *Log) drain() {
	for {
		select {
		case entry := <-l.entries:
			l.write(entry)
		default:
			return
		}
	}
}

func (l *Log) write(entry Entry) {
	// Bounded so a wedged database cannot stall the consumer forever.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := l.store.Insert(ctx, entry); err != nil {
		failuresCounter.WithLabelValues("insert_failed").Inc()
		l.logger.Error("audit write failed",
			"error", err,
			"action", entry.Action,
		)
	}
}

// Close drains buffered entries and stops the consumer.
func (l *Log) Close() error {
	close(l.stopChan)
	l.wg.Wait()
	return nil
}

// NopRecorder discards all entries. Useful in tests.
type NopRecorder struct{}

// Record implements Recorder.
func (NopRecorder) Record(context.Context, *ulid.ULID, string, string, string, string) {}

// Compile-time interface checks.
var (
	_ Recorder = (*Log)(nil)
	_ Recorder = NopRecorder{}
)
