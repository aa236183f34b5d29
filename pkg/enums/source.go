package enums

// EventSource identifies which upstream produced an event record.
type EventSource string

const (
	EventSourceLine EventSource = "line"
)

// ReplySource identifies where a reply was composed.
type ReplySource string

const (
	ReplySourceKiosk ReplySource = "kiosk"
)

// LineSourceType mirrors the LINE webhook source.type discriminator.
type LineSourceType string

const (
	LineSourceUser  LineSourceType = "user"
	LineSourceGroup LineSourceType = "group"
	LineSourceRoom  LineSourceType = "room"
)

// EventTypeLineMessage is the only event type the decoder knows how to project
// today; anything else is stored with an opaque payload.
const EventTypeLineMessage = "line_message"
