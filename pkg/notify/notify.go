// Package notify carries assignment events to the push-notification
// collaborator. The pipeline only ever enqueues: device-token resolution
// and delivery retries belong to the consumer side of the queue.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/Mindburn-Labs/leadgrid/pkg/lead"
)

// Notifier is the injected capability the coordinator calls after a commit.
// Enqueue must be non-blocking beyond a short timeout and must never
// propagate a failure that would roll back an assignment.
type Notifier interface {
	Enqueue(ctx context.Context, n lead.Notification) error
}

// EnqueueTimeout bounds how long an enqueue may block.
const EnqueueTimeout = 2 * time.Second

// Queue is a bounded in-process notification queue. A full queue drops the
// oldest event rather than blocking the pipeline; the queue is at-least-once
// only while the process lives.
type Queue struct {
	ch     chan lead.Notification
	logger *slog.Logger
}

// NewQueue creates a queue with the given capacity.
func NewQueue(capacity int, logger *slog.Logger) *Queue {
	if capacity <= 0 {
		capacity = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{ch: make(chan lead.Notification, capacity), logger: logger}
}

// Enqueue adds the event, evicting the oldest entry when full.
func (q *Queue) Enqueue(_ context.Context, n lead.Notification) error {
	for {
		select {
		case q.ch <- n:
			return nil
		default:
		}
		select {
		case dropped := <-q.ch:
			q.logger.Warn("notification queue full, dropping oldest",
				"lead_id", dropped.LeadID, "agency_id", dropped.AgencyID)
		default:
		}
	}
}

// Events exposes the consumer side of the queue.
func (q *Queue) Events() <-chan lead.Notification {
	return q.ch
}

// Len reports the number of queued events.
func (q *Queue) Len() int { return len(q.ch) }

// Nop returns a Notifier that discards events.
func Nop() Notifier { return nopNotifier{} }

type nopNotifier struct{}

func (nopNotifier) Enqueue(context.Context, lead.Notification) error { return nil }
