package plife

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// EventKind classifies simulation events delivered to notifiers.
type EventKind string

const (
	// EventFrame carries the snapshot of a completed frame.
	EventFrame EventKind = "frame"
	// EventStarted fires when the loop enters Running.
	EventStarted EventKind = "started"
	// EventStopped fires when the loop leaves Running.
	EventStopped EventKind = "stopped"
	// EventReset fires when the population is re-created.
	EventReset EventKind = "reset"
	// EventRecovered fires when non-finite particles were reset
	// during a frame.
	EventRecovered EventKind = "recovered"
)

// Event is the notification payload for simulation events.
type Event struct {
	Kind         EventKind    `json:"kind"`
	SimulationID SimulationID `json:"simulation_id"`
	Frame        int64        `json:"frame"`
	Timestamp    int64        `json:"timestamp"`

	// Snapshot is set on frame events.
	Snapshot *Snapshot `json:"snapshot,omitempty"`
	// RecoveredIDs is set on recovered events.
	RecoveredIDs []int `json:"recovered_ids,omitempty"`
	// Stats is set on frame events.
	Stats *FrameStats `json:"stats,omitempty"`
}

// JSON returns the event as JSON bytes.
func (e Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// Notifier is the interface that all notification channels must implement
type Notifier interface {
	// ID returns a unique identifier for this notifier
	ID() string

	// Type returns the type of notifier (e.g., "webhook", "websocket")
	Type() string

	// Notify sends a notification event. Returns an error if notification fails.
	// The context can be used for cancellation and timeout.
	Notify(ctx context.Context, event Event) error

	// Close closes the notifier and releases any resources
	Close() error
}

// notificationJob represents a job to be processed by the notification queue
type notificationJob struct {
	Event       Event
	NotifierIDs []string
}

// NotificationManager manages all notifiers and routes events to them.
type NotificationManager struct {
	mu        sync.RWMutex
	notifiers map[string]Notifier
	jobs      chan notificationJob
	closed    bool
	wg        sync.WaitGroup
	logger    Logger
}

// NewNotificationManager creates a new notification manager
func NewNotificationManager() *NotificationManager {
	return NewNotificationManagerWithLogger(NewNoOpLogger())
}

// NewNotificationManagerWithLogger creates a notification manager with
// an injected logger.
func NewNotificationManagerWithLogger(logger Logger) *NotificationManager {
	if logger == nil {
		logger = NewNoOpLogger()
	}
	mgr := &NotificationManager{
		notifiers: make(map[string]Notifier),
		jobs:      make(chan notificationJob, 1024),
		logger:    logger,
	}
	mgr.startWorkers(1)
	return mgr
}

// RegisterNotifier registers a notifier with the manager
func (nm *NotificationManager) RegisterNotifier(notifier Notifier) error {
	if notifier == nil {
		return fmt.Errorf("notifier cannot be nil")
	}

	id := notifier.ID()
	if id == "" {
		return fmt.Errorf("notifier ID cannot be empty")
	}

	nm.mu.Lock()
	defer nm.mu.Unlock()

	if _, exists := nm.notifiers[id]; exists {
		return fmt.Errorf("notifier with ID %s already exists", id)
	}

	nm.notifiers[id] = notifier
	return nil
}

// UnregisterNotifier removes a notifier from the manager
func (nm *NotificationManager) UnregisterNotifier(id string) error {
	nm.mu.Lock()
	notifier, exists := nm.notifiers[id]
	nm.mu.Unlock()

	if !exists {
		return fmt.Errorf("notifier with ID %s not found", id)
	}

	if err := notifier.Close(); err != nil {
		return fmt.Errorf("error closing notifier %s: %w", id, err)
	}

	nm.mu.Lock()
	delete(nm.notifiers, id)
	nm.mu.Unlock()

	return nil
}

// GetNotifier retrieves a notifier by ID
func (nm *NotificationManager) GetNotifier(id string) (Notifier, bool) {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	notifier, exists := nm.notifiers[id]
	return notifier, exists
}

// ListNotifiers returns a list of all registered notifier IDs
func (nm *NotificationManager) ListNotifiers() []string {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	ids := make([]string, 0, len(nm.notifiers))
	for id := range nm.notifiers {
		ids = append(ids, id)
	}
	return ids
}

// Broadcast enqueues an event for every registered notifier.
func (nm *NotificationManager) Broadcast(event Event) {
	nm.Enqueue(event, nm.ListNotifiers())
}

// Enqueue enqueues an event to be processed asynchronously by worker
// goroutines. This method is non-blocking: the simulation loop must
// never stall on a slow consumer, so events are dropped when the queue
// is full.
func (nm *NotificationManager) Enqueue(event Event, notifierIDs []string) {
	if len(notifierIDs) == 0 {
		return
	}

	nm.mu.RLock()
	closed := nm.closed
	nm.mu.RUnlock()

	if closed {
		return
	}

	select {
	case nm.jobs <- notificationJob{Event: event, NotifierIDs: notifierIDs}:
	default:
		nm.logger.Warnf("notification queue full, dropping event: kind=%s sim=%s frame=%d", event.Kind, event.SimulationID, event.Frame)
	}
}

// startWorkers starts n worker goroutines to process notification jobs
func (nm *NotificationManager) startWorkers(n int) {
	for i := 0; i < n; i++ {
		nm.wg.Add(1)
		go nm.worker()
	}
}

// worker processes notification jobs from the queue
func (nm *NotificationManager) worker() {
	defer nm.wg.Done()
	for job := range nm.jobs {
		nm.dispatchJob(job)
	}
}

// dispatchJob dispatches a notification job to all specified notifiers
func (nm *NotificationManager) dispatchJob(job notificationJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, id := range job.NotifierIDs {
		nm.notifyWithRetry(ctx, id, job.Event)
	}
}

// notifyWithRetry attempts delivery with exponential backoff. Frame
// events are never retried: the next frame supersedes them anyway.
func (nm *NotificationManager) notifyWithRetry(ctx context.Context, notifierID string, event Event) {
	nm.mu.RLock()
	notifier, ok := nm.notifiers[notifierID]
	nm.mu.RUnlock()

	if !ok {
		nm.logger.Warnf("notification failed: notifier=%s error=notifier not found", notifierID)
		return
	}

	maxRetries := 3
	if event.Kind == EventFrame {
		maxRetries = 0
	}
	backoff := 100 * time.Millisecond

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := notifier.Notify(ctx, event)
		if err == nil {
			return
		}

		nm.logger.Warnf("notification failed: notifier=%s attempt=%d error=%v", notifierID, attempt+1, err)

		if attempt == maxRetries {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}

// Close closes all registered notifiers and shuts down worker goroutines
func (nm *NotificationManager) Close() error {
	nm.mu.Lock()
	if nm.closed {
		nm.mu.Unlock()
		return nil
	}
	nm.closed = true
	close(nm.jobs)
	nm.mu.Unlock()

	// Wait for all workers to finish processing
	nm.wg.Wait()

	nm.mu.Lock()
	var errs []error
	for id, notifier := range nm.notifiers {
		if err := notifier.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing notifier %s: %w", id, err))
		}
	}
	nm.notifiers = make(map[string]Notifier)
	nm.mu.Unlock()

	if len(errs) > 0 {
		return fmt.Errorf("errors closing notifiers: %v", errs)
	}

	return nil
}
