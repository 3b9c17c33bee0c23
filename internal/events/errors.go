package events

import "github.com/cockroachdb/errors"

// ErrMalformedEvent is returned for payloads that cannot be decoded or carry
// an unknown state. Such events are logged and dropped.
var ErrMalformedEvent = errors.New("malformed event")

func malformed(format string, args ...any) error {
	return errors.Wrapf(ErrMalformedEvent, format, args...)
}
