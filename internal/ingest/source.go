package ingest

import "context"

// Source is one feed of raw channel messages. Poll drains whatever arrived
// since the previous call; ordering within a channel follows message id. A
// source never blocks waiting for new messages, the intake loop sets the
// cadence.
type Source interface {
	Name() string
	Poll(ctx context.Context) ([]RawMessage, error)
}
