package linewebhook

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/smiyakawa/kiosk-relay/pkg/db/models"
	pkgerrors "github.com/smiyakawa/kiosk-relay/pkg/errors"
)

// ArchiveRepository records every inbound text message the webhook sees.
type ArchiveRepository interface {
	Save(ctx context.Context, msg *models.InboundMessage) error
}

type gormArchive struct {
	db *gorm.DB
}

func NewArchiveRepository(db *gorm.DB) ArchiveRepository {
	return &gormArchive{db: db}
}

// Save inserts the archive row. Webhook redeliveries hit the unique message_id
// index and are dropped silently.
func (r *gormArchive) Save(ctx context.Context, msg *models.InboundMessage) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}},
			DoNothing: true,
		}).
		Create(msg).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "archiving inbound message")
	}
	return nil
}
