package events

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/smiyakawa/kiosk-relay/pkg/db/models"
	"github.com/smiyakawa/kiosk-relay/pkg/enums"
	pkgerrors "github.com/smiyakawa/kiosk-relay/pkg/errors"
)

// Repository is the per-device event log. Ordering is by server-assigned
// created_at, never by the upstream occurred_at.
type Repository interface {
	Upsert(ctx context.Context, event *models.KioskEvent) error
	QueryAfter(ctx context.Context, deviceID string, after time.Time) ([]models.KioskEvent, error)
	QueryRecent(ctx context.Context, deviceID string, limit int) ([]models.KioskEvent, error)
	MarkReplied(ctx context.Context, deviceID, eventID, choiceText string) error
	WithTx(tx *gorm.DB) Repository
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) WithTx(tx *gorm.DB) Repository {
	return &gormRepository{db: tx}
}

// mergeColumns are the fields a redelivered envelope may refresh. created_at,
// status and the reply columns are deliberately excluded: first write wins for
// ordering, and a merge must never un-reply an event.
var mergeColumns = []string{"type", "source", "payload", "line", "gemini", "occurred_at"}

func (r *gormRepository) Upsert(ctx context.Context, event *models.KioskEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "device_id"}, {Name: "event_id"}},
			DoUpdates: clause.AssignmentColumns(mergeColumns),
		}).
		Create(event).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "upserting kiosk event")
	}
	return nil
}

// QueryAfter returns events strictly newer than the cursor, oldest first.
func (r *gormRepository) QueryAfter(ctx context.Context, deviceID string, after time.Time) ([]models.KioskEvent, error) {
	var rows []models.KioskEvent
	err := r.db.WithContext(ctx).
		Where("device_id = ? AND created_at > ?", deviceID, after).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "querying kiosk events")
	}
	return rows, nil
}

// QueryRecent returns the latest events for a device, oldest first, so the
// caller can emit them in display order.
func (r *gormRepository) QueryRecent(ctx context.Context, deviceID string, limit int) ([]models.KioskEvent, error) {
	var rows []models.KioskEvent
	err := r.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "querying recent kiosk events")
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

// MarkReplied flips the event to replied and records which choice was sent.
func (r *gormRepository) MarkReplied(ctx context.Context, deviceID, eventID, choiceText string) error {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&models.KioskEvent{}).
		Where("device_id = ? AND event_id = ?", deviceID, eventID).
		Updates(map[string]any{
			"status":            enums.EventStatusReplied,
			"reply_choice_text": choiceText,
			"replied_at":        now,
			"reply_source":      enums.ReplySourceKiosk,
		})
	if result.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, result.Error, "marking event replied")
	}
	if result.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "event not found")
	}
	return nil
}
