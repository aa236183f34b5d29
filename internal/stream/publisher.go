package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/smiyakawa/kiosk-relay/internal/events"
	"github.com/smiyakawa/kiosk-relay/pkg/config"
	"github.com/smiyakawa/kiosk-relay/pkg/db/models"
	"github.com/smiyakawa/kiosk-relay/pkg/db/types"
	"github.com/smiyakawa/kiosk-relay/pkg/enums"
	"github.com/smiyakawa/kiosk-relay/pkg/logger"
	"github.com/smiyakawa/kiosk-relay/pkg/metrics"
)

// Publisher turns the per-device event log into a resumable SSE stream:
// catch-up from a cursor, then poll for new rows and heartbeat in between.
type Publisher struct {
	repo    events.Repository
	metrics *metrics.StreamMetrics
	logg    *logger.Logger
	cfg     config.StreamConfig
}

func NewPublisher(repo events.Repository, m *metrics.StreamMetrics, logg *logger.Logger, cfg config.StreamConfig) *Publisher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 20 * time.Second
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = 20
	}
	return &Publisher{repo: repo, metrics: m, logg: logg, cfg: cfg}
}

// wireEvent is the on-wire projection of an event row. Timestamps travel as
// epoch milliseconds so kiosks can feed createdAt straight back as a cursor.
type wireEvent struct {
	ID         string                 `json:"id"`
	DeviceID   string                 `json:"deviceId"`
	Type       string                 `json:"type"`
	Status     enums.EventStatus      `json:"status"`
	Source     enums.EventSource      `json:"source"`
	Payload    types.JSONMap          `json:"payload,omitempty"`
	Line       *models.LineRouting    `json:"line,omitempty"`
	Gemini     *models.DerivedChoices `json:"gemini,omitempty"`
	OccurredAt *int64                 `json:"occurredAt,omitempty"`
	CreatedAt  int64                  `json:"createdAt"`
	Reply      *wireReply             `json:"reply,omitempty"`
}

type wireReply struct {
	ChoiceText string            `json:"choiceText"`
	RepliedAt  *int64            `json:"repliedAt,omitempty"`
	Source     enums.ReplySource `json:"source"`
}

func toWire(event models.KioskEvent) wireEvent {
	wire := wireEvent{
		ID:        event.EventID,
		DeviceID:  event.DeviceID,
		Type:      event.Type,
		Status:    event.Status,
		Source:    event.Source,
		Payload:   event.Payload,
		Line:      event.Line,
		Gemini:    event.Gemini,
		CreatedAt: ToMillis(event.CreatedAt),
	}
	if event.OccurredAt != nil {
		millis := ToMillis(*event.OccurredAt)
		wire.OccurredAt = &millis
	}
	if reply := event.Reply(); reply != nil {
		wire.Reply = &wireReply{
			ChoiceText: reply.ChoiceText,
			Source:     reply.Source,
		}
		if reply.RepliedAt != nil {
			millis := ToMillis(*reply.RepliedAt)
			wire.Reply.RepliedAt = &millis
		}
	}
	return wire
}

// Serve writes the stream until ctx is cancelled (client disconnect) or the
// connection breaks. The since cursor, when nil, means "start from recent
// history". Write errors end the stream silently; the kiosk will reconnect.
func (p *Publisher) Serve(ctx context.Context, w io.Writer, flush func(), deviceID string, since *time.Time) error {
	p.metrics.StreamOpened()
	defer p.metrics.StreamClosed()

	if p.logg != nil {
		ctx = p.logg.WithDeviceID(ctx, deviceID)
	}

	cursor, seeded, err := p.sendInitial(ctx, w, flush, deviceID, since)
	if err != nil {
		return nil
	}

	poll := time.NewTicker(p.cfg.PollInterval)
	defer poll.Stop()
	heartbeat := time.NewTicker(p.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-poll.C:
			var (
				rows     []models.KioskEvent
				fetchErr error
			)
			if seeded {
				rows, fetchErr = p.repo.QueryAfter(ctx, deviceID, cursor)
			} else {
				// The cursorless catch-up failed earlier; retry the bounded
				// seed rather than replaying the whole log.
				rows, fetchErr = p.repo.QueryRecent(ctx, deviceID, p.cfg.RecentLimit)
			}
			if fetchErr != nil {
				p.metrics.PollFailed()
				if p.logg != nil {
					p.logg.Warn(ctx, fmt.Sprintf("stream poll failed: %v", fetchErr))
				}
				if writeErr := writeErrorEvent(w, flush); writeErr != nil {
					return nil
				}
				continue
			}
			advanced, err := writeEvents(w, flush, rows, cursor)
			if err != nil {
				return nil
			}
			cursor = advanced
			seeded = true
			p.metrics.EventsEmitted(len(rows))
		case <-heartbeat.C:
			if _, err := io.WriteString(w, ": heartbeat\n\n"); err != nil {
				return nil
			}
			flush()
			p.metrics.HeartbeatSent()
		}
	}
}

// sendInitial performs the catch-up send and establishes the poll cursor.
// seeded reports whether the cursor is trustworthy; it is false only when a
// cursorless catch-up failed, in which case polls fall back to the recent-N
// seed until one succeeds.
func (p *Publisher) sendInitial(ctx context.Context, w io.Writer, flush func(), deviceID string, since *time.Time) (time.Time, bool, error) {
	var (
		rows []models.KioskEvent
		err  error
	)
	if since != nil {
		rows, err = p.repo.QueryAfter(ctx, deviceID, *since)
	} else {
		rows, err = p.repo.QueryRecent(ctx, deviceID, p.cfg.RecentLimit)
	}
	if err != nil {
		p.metrics.PollFailed()
		if p.logg != nil {
			p.logg.Warn(ctx, fmt.Sprintf("stream catch-up failed: %v", err))
		}
		if writeErr := writeErrorEvent(w, flush); writeErr != nil {
			return time.Time{}, false, writeErr
		}
		if since != nil {
			return *since, true, nil
		}
		return time.Time{}, false, nil
	}

	cursor := time.Time{}
	if since != nil {
		cursor = *since
	}
	cursor, err = writeEvents(w, flush, rows, cursor)
	return cursor, true, err
}

func writeEvents(w io.Writer, flush func(), rows []models.KioskEvent, cursor time.Time) (time.Time, error) {
	for _, row := range rows {
		if err := writeEvent(w, row); err != nil {
			return cursor, err
		}
		if row.CreatedAt.After(cursor) {
			cursor = row.CreatedAt
		}
	}
	if len(rows) > 0 {
		flush()
	}
	return cursor, nil
}

func writeEvent(w io.Writer, row models.KioskEvent) error {
	data, err := json.Marshal(toWire(row))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: kiosk_event\nid: %s\ndata: %s\n\n", row.EventID, data)
	return err
}

// writeErrorEvent tells the kiosk in-band that a fetch failed; the stream
// stays open so the next poll can recover.
func writeErrorEvent(w io.Writer, flush func()) error {
	if _, err := io.WriteString(w, "event: error\ndata: {\"error\":\"events fetch failed\"}\n\n"); err != nil {
		return err
	}
	flush()
	return nil
}
