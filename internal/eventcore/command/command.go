// Package command defines the envelope a caller submits to a
// CommandHandler: a stream to address, a payload to decide on, and an id
// used for idempotent retries.
package command

import (
	"time"

	"github.com/google/uuid"

	"github.com/ledgerflow/eventcore/internal/eventcore/journal"
)

// Message wraps a command payload with the envelope fields the core needs
// to route and deduplicate it.
type Message[C any] struct {
	ID       uuid.UUID
	StreamID journal.StreamID
	At       time.Time
	Payload  C
	Metadata map[string]string
}

// New constructs a Message with a freshly-generated ID and At set to now.
// An optional metadata map may be passed through from the caller (e.g. a
// trace id or an idempotency hint received over the wire); omitting it
// leaves Metadata nil.
func New[C any](streamID journal.StreamID, payload C, metadata ...map[string]string) Message[C] {
	msg := Message[C]{ID: uuid.New(), StreamID: streamID, At: time.Now(), Payload: payload}
	if len(metadata) > 0 {
		msg.Metadata = metadata[0]
	}
	return msg
}
