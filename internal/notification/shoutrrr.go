package notification

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"
)

// ShoutrrrNotifier sends through a shoutrrr service URL (smtp://, twilio://,
// and the rest of the shoutrrr catalog). One notifier serves one channel.
type ShoutrrrNotifier struct {
	sender  *router.ServiceRouter
	timeout time.Duration
}

// NewShoutrrrNotifier validates the service URL and builds the sender. An
// invalid URL fails construction, not send time.
func NewShoutrrrNotifier(serviceURL string, timeout time.Duration) (*ShoutrrrNotifier, error) {
	sender, err := shoutrrr.CreateSender(serviceURL)
	if err != nil {
		return nil, fmt.Errorf("invalid notification service URL: %w", err)
	}
	if timeout > 0 {
		sender.Timeout = timeout
	}
	sender.SetLogger(log.New(io.Discard, "", 0))
	return &ShoutrrrNotifier{sender: sender, timeout: timeout}, nil
}

// Send delivers the message. The recipient is carried in the service URL
// for most shoutrrr services; it is surfaced here for audit parity with
// other notifiers.
func (s *ShoutrrrNotifier) Send(ctx context.Context, recipient string, msg Message) error {
	if err := ctx.Err(); err != nil {
		return Transient(err)
	}

	params := stypes.Params{}
	if msg.Title != "" {
		params.SetTitle(msg.Title)
	}
	errs := s.sender.Send(msg.Body, &params)
	for _, err := range errs {
		if err == nil {
			continue
		}
		if isPermanentSendError(err) {
			return Permanent(err)
		}
		return Transient(err)
	}
	return nil
}

// isPermanentSendError classifies provider rejections that retrying cannot
// fix.
func isPermanentSendError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"invalid", "unauthorized", "forbidden", "not found", "rejected"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
