package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/smiyakawa/kiosk-relay/pkg/db/types"
	"github.com/smiyakawa/kiosk-relay/pkg/enums"
)

// KioskEvent is one inbound message in a device's ordered event log. The
// natural key is (device_id, event_id); redelivered envelopes merge into the
// same row. created_at is assigned on first write and never changes on merge.
type KioskEvent struct {
	DeviceID string `gorm:"type:text;primaryKey"`
	EventID  string `gorm:"type:text;primaryKey"`

	Type   string            `gorm:"type:text;not null"`
	Status enums.EventStatus `gorm:"type:text;not null;default:new"`
	Source enums.EventSource `gorm:"type:text;not null"`

	Payload types.JSONMap   `gorm:"type:jsonb"`
	Line    *LineRouting    `gorm:"type:jsonb"`
	Gemini  *DerivedChoices `gorm:"type:jsonb"`

	OccurredAt *time.Time `gorm:"type:timestamptz"`
	CreatedAt  time.Time  `gorm:"type:timestamptz;not null"`

	ReplyChoiceText *string           `gorm:"type:text"`
	RepliedAt       *time.Time        `gorm:"type:timestamptz"`
	ReplySource     enums.ReplySource `gorm:"type:text"`
}

// Reply assembles the reply sub-record, or nil when the event is unanswered.
func (e KioskEvent) Reply() *ReplyRecord {
	if e.ReplyChoiceText == nil && e.RepliedAt == nil {
		return nil
	}
	rec := &ReplyRecord{Source: e.ReplySource}
	if e.ReplyChoiceText != nil {
		rec.ChoiceText = *e.ReplyChoiceText
	}
	rec.RepliedAt = e.RepliedAt
	return rec
}

// ReplyRecord is the reply sub-record merged onto an event when answered.
type ReplyRecord struct {
	ChoiceText string            `json:"choiceText"`
	RepliedAt  *time.Time        `json:"repliedAt"`
	Source     enums.ReplySource `json:"source"`
}

// LineRouting is the least-data projection needed to send a reply back:
// destination, quote token and enough context for the no-quote fallback.
type LineRouting struct {
	RouteID    string               `json:"routeId,omitempty"`
	QuoteToken string               `json:"quoteToken,omitempty"`
	MessageID  string               `json:"messageId,omitempty"`
	SourceType enums.LineSourceType `json:"sourceType,omitempty"`
	SenderName string               `json:"senderName,omitempty"`
	GroupID    string               `json:"groupId,omitempty"`
	RoomID     string               `json:"roomId,omitempty"`
	UserID     string               `json:"userId,omitempty"`
}

func (r LineRouting) Value() (driver.Value, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal line routing: %w", err)
	}
	return raw, nil
}

func (r *LineRouting) Scan(src any) error {
	return scanJSON(src, r, "line routing")
}

// DerivedChoices is the AI-generated binary choice pair attached to text
// messages. Independent of reply state.
type DerivedChoices struct {
	Choice1     string    `json:"choice1"`
	Choice2     string    `json:"choice2"`
	Reasoning   string    `json:"reasoning"`
	GeneratedAt time.Time `json:"generatedAt"`
}

func (c DerivedChoices) Value() (driver.Value, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal derived choices: %w", err)
	}
	return raw, nil
}

func (c *DerivedChoices) Scan(src any) error {
	return scanJSON(src, c, "derived choices")
}

func scanJSON(src, dest any, label string) error {
	if src == nil {
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("%s: unsupported source type %T", label, src)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("unmarshal %s: %w", label, err)
	}
	return nil
}
