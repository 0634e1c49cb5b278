package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/raidtimer/go/internal/timer"
)

// Publisher delivers change envelopes to an external bus.
type Publisher interface {
	Publish(ctx context.Context, event GroupChanged) error
}

// LogPublisher only logs events. It is used when no bus is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, event GroupChanged) error {
	log.Debug().
		Str("event_id", event.ID).
		Str("group_id", event.GroupID).
		Uint64("update_id", event.UpdateID).
		Msg("group changed")
	return nil
}

// NATSPublisher publishes events to core NATS under <prefix>.<group id>.
type NATSPublisher struct {
	nc            *nats.Conn
	subjectPrefix string
}

func NewNATSPublisher(nc *nats.Conn, subjectPrefix string) *NATSPublisher {
	return &NATSPublisher{
		nc:            nc,
		subjectPrefix: strings.TrimSuffix(subjectPrefix, "."),
	}
}

func (p *NATSPublisher) Publish(ctx context.Context, event GroupChanged) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := nats.NewMsg(SubjectFor(p.subjectPrefix, event.GroupID))
	msg.Header.Set(nats.MsgIdHdr, event.ID)
	msg.Data = data
	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", msg.Subject, err)
	}
	return nil
}

// SubjectFor builds the subject for a group. Group ids are client supplied,
// so characters with meaning in NATS subjects are replaced.
func SubjectFor(prefix, groupID string) string {
	token := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, groupID)
	if token == "" {
		token = "_"
	}
	return prefix + "." + token
}

// Notifier adapts a Publisher to timer.ChangeListener.
type Notifier struct {
	publisher Publisher
	timeout   time.Duration
	clock     clockwork.Clock
}

// NewNotifier should share the registry's clock so envelope timestamps line
// up with update_time. A nil clock means the real one.
func NewNotifier(publisher Publisher, timeout time.Duration, clock clockwork.Clock) *Notifier {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Notifier{publisher: publisher, timeout: timeout, clock: clock}
}

// GroupChanged publishes snap. Failures are logged and never reach the
// mutating request.
func (n *Notifier) GroupChanged(snap timer.Snapshot) {
	now := n.clock.Now()
	event := GroupChanged{
		ID:        uuid.NewString(),
		GroupID:   snap.GroupID,
		UpdateID:  snap.Version,
		Timestamp: now.UTC(),
		State:     NewGroupState(snap, now),
	}

	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()
	if err := n.publisher.Publish(ctx, event); err != nil {
		log.Error().
			Err(err).
			Str("group_id", snap.GroupID).
			Uint64("update_id", snap.Version).
			Msg("failed to publish group change")
	}
}
