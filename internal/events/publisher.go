// Package events publishes committed workflow transitions to the message bus.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/activity-ticket-api/internal/observability"
)

// Event names published after a workflow transition commits.
const (
	ActivityStateChanged = "activity.state_changed"
	ReviewDecided        = "review.decided"
	TicketsIssued        = "tickets.issued"
)

// Envelope wraps every published payload.
type Envelope struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurredAt"`
	Data       interface{} `json:"data"`
}

// Publisher hands workflow events to the bus. Implementations must not block
// the caller for long; delivery failures are reported, never retried.
type Publisher interface {
	Publish(ctx context.Context, event string, data interface{}) error
}

// Subject returns the NATS subject for event under prefix.
func Subject(prefix, event string) string {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		return "workflow." + event
	}
	return prefix + ".workflow." + event
}

// Connect dials NATS with reconnect behaviour suited to a long running API.
func Connect(url, name string, logger zerolog.Logger) (*nats.Conn, error) {
	if url == "" {
		return nil, fmt.Errorf("nats url must not be empty")
	}

	log := logger.With().Str("component", "nats").Logger()
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to nats: %w", err)
	}
	return conn, nil
}

// CorrelationFunc extracts a request correlation id from ctx.
type CorrelationFunc func(ctx context.Context) string

type natsPublisher struct {
	conn        *nats.Conn
	prefix      string
	correlation CorrelationFunc
	logger      zerolog.Logger
}

// NewNATSPublisher publishes events on conn under prefix. When correlation is
// set its result is forwarded as the X-Correlation-ID header.
func NewNATSPublisher(conn *nats.Conn, prefix string, correlation CorrelationFunc, logger zerolog.Logger) Publisher {
	return &natsPublisher{
		conn:        conn,
		prefix:      prefix,
		correlation: correlation,
		logger:      logger.With().Str("component", "event_publisher").Logger(),
	}
}

func (p *natsPublisher) Publish(ctx context.Context, event string, data interface{}) error {
	payload, err := Encode(event, data)
	if err != nil {
		observability.EventsPublished().WithLabelValues(event, "error").Inc()
		return err
	}

	subject := Subject(p.prefix, event)
	msg := nats.NewMsg(subject)
	msg.Data = payload
	if p.correlation != nil {
		if id := p.correlation(ctx); id != "" {
			msg.Header.Set("X-Correlation-ID", id)
		}
	}

	if err := p.conn.PublishMsg(msg); err != nil {
		observability.EventsPublished().WithLabelValues(event, "error").Inc()
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	observability.EventsPublished().WithLabelValues(event, "ok").Inc()
	p.logger.Debug().Str("subject", subject).Msg("workflow event published")
	return nil
}

// Encode builds the JSON envelope for event.
func Encode(event string, data interface{}) ([]byte, error) {
	return json.Marshal(Envelope{
		ID:         uuid.NewString(),
		Type:       event,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
}

// Nop discards every event. It is used when NATS is not configured.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, string, interface{}) error { return nil }
