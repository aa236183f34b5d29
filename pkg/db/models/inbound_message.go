package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/smiyakawa/kiosk-relay/pkg/db/types"
	"github.com/smiyakawa/kiosk-relay/pkg/enums"
)

// InboundMessage archives every text message the webhook sees, whether or not
// it was relayed to a kiosk. MessageID dedupes webhook redeliveries at the
// database level; the redis guard only short-circuits the common case.
type InboundMessage struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	MessageID string    `gorm:"type:text;not null;uniqueIndex"`

	Text       string               `gorm:"type:text;not null"`
	SenderName *string              `gorm:"type:text"`
	UserID     *string              `gorm:"type:text"`
	RouteID    *string              `gorm:"type:text"`
	SourceType enums.LineSourceType `gorm:"type:text"`

	Mentioned bool `gorm:"not null;default:false"`
	Published bool `gorm:"not null;default:false"`

	Raw types.JSONMap `gorm:"type:jsonb"`

	OccurredAt time.Time `gorm:"type:timestamptz;not null"`
	CreatedAt  time.Time `gorm:"type:timestamptz;not null"`
}
