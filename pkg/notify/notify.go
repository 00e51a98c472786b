// Package notify delivers a short text message through a pluggable
// messaging backend.
//
// Delivery is at-most-once per Send call from the caller's point of view:
// backends retry transient failures internally, but a message that was
// accepted upstream and then reported as failed may be delivered twice.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/unklstewy/plane-spotter/pkg/adsb"
)

// Sink is implemented by every notification backend.
type Sink interface {
	// Send delivers message. Failures are returned as *NotificationError.
	Send(ctx context.Context, message string) error

	// Name returns the backend tag (e.g., "twitter").
	Name() string
}

// ErrorKind classifies a delivery failure with the same semantics as
// tracking failures.
type ErrorKind = adsb.ErrorKind

const (
	Transient = adsb.Transient
	Permanent = adsb.Permanent
)

// ErrEmptyMessage is returned for a blank message.
var ErrEmptyMessage = errors.New("message is empty")

// NotificationError is returned by Sink implementations.
type NotificationError struct {
	Kind    ErrorKind
	Backend string
	Err     error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("%s: %s notification error: %v", e.Backend, e.Kind, e.Err)
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a NotificationError worth retrying.
func IsTransient(err error) bool {
	var ne *NotificationError
	return errors.As(err, &ne) && ne.Kind == Transient
}

// IsPermanent reports whether err is a NotificationError that will not succeed on retry.
func IsPermanent(err error) bool {
	var ne *NotificationError
	return errors.As(err, &ne) && ne.Kind == Permanent
}
