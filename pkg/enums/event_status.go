package enums

// EventStatus tracks the reply lifecycle of a kiosk event. The only legal
// transition is new -> replied.
type EventStatus string

const (
	EventStatusNew     EventStatus = "new"
	EventStatusReplied EventStatus = "replied"
)

func (s EventStatus) Valid() bool {
	switch s {
	case EventStatusNew, EventStatusReplied:
		return true
	}
	return false
}
