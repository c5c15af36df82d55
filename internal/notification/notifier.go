// Package notification defines the channel send contract the dispatcher
// uses and the provider implementations behind it.
package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Message is the rendered notification payload.
type Message struct {
	Title string
	Body  string
}

// Notifier is the per-channel send capability. Implementations classify
// failures with Transient or Permanent so the dispatcher knows whether to
// retry; an unclassified error is treated as transient.
type Notifier interface {
	Send(ctx context.Context, recipient string, msg Message) error
}

// TransientError marks a failure worth retrying (timeouts, connection
// resets, rate limits).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a terminal failure (invalid address, rejected
// payload). The dispatcher records it without retrying.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Permanent wraps err as terminal.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err is classified terminal. Anything else,
// including unclassified errors, is retried.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Registry maps channels to their notifiers. Channels are registered
// explicitly at startup; there is no runtime provider discovery.
type Registry struct {
	mu        sync.RWMutex
	notifiers map[string]Notifier
}

// NewRegistry creates an empty notifier registry.
func NewRegistry() *Registry {
	return &Registry{notifiers: make(map[string]Notifier)}
}

// Register binds a notifier to a channel name, replacing any previous
// binding.
func (r *Registry) Register(channel string, n Notifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifiers[channel] = n
}

// Get returns the notifier for a channel.
func (r *Registry) Get(channel string) (Notifier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.notifiers[channel]
	if !ok {
		return nil, fmt.Errorf("no notifier registered for channel %q", channel)
	}
	return n, nil
}

// Channels returns the registered channel names.
func (r *Registry) Channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	channels := make([]string, 0, len(r.notifiers))
	for ch := range r.notifiers {
		channels = append(channels, ch)
	}
	return channels
}
