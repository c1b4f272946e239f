// Package events fans booking lifecycle changes out to realtime
// subscribers. Delivery is best effort and never fails the caller.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pubnub "github.com/pubnub/go/v7"
)

type Type string

const (
	BookingCreated   Type = "booking.created"
	BookingAccepted  Type = "booking.accepted"
	BookingRejected  Type = "booking.rejected"
	BookingCancelled Type = "booking.cancelled"
	BookingPaid      Type = "booking.paid"
)

type Event struct {
	Type       Type      `json:"type"`
	BookingID  string    `json:"booking_id"`
	TicketID   string    `json:"ticket_id"`
	UserID     string    `json:"user_id"`
	VendorID   string    `json:"vendor_id"`
	Quantity   int       `json:"quantity"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

type Config struct {
	PublishKey   string
	SubscribeKey string
	SecretKey    string
	UserID       string
	Channel      string
}

// PubNubPublisher writes each event to the ops channel and to the
// affected user's and vendor's channels.
type PubNubPublisher struct {
	pn      *pubnub.PubNub
	channel string
}

func NewPubNubPublisher(cfg Config) *PubNubPublisher {
	pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.UserID))
	pnConfig.PublishKey = cfg.PublishKey
	pnConfig.SubscribeKey = cfg.SubscribeKey
	pnConfig.SecretKey = cfg.SecretKey

	return &PubNubPublisher{
		pn:      pubnub.NewPubNub(pnConfig),
		channel: cfg.Channel,
	}
}

func (p *PubNubPublisher) Publish(_ context.Context, e Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	go func() {
		for _, channel := range Channels(p.channel, e) {
			_, st, err := p.pn.Publish().
				Channel(channel).
				Message(e).
				Execute()
			if err != nil {
				slog.Warn("Failed to publish booking event",
					"type", e.Type,
					"booking_id", e.BookingID,
					"channel", channel,
					"status", st.StatusCode,
					"error", err,
				)
			}
		}
	}()
}

// Channels lists the channels an event is delivered on.
func Channels(opsChannel string, e Event) []string {
	channels := []string{opsChannel}
	if e.UserID != "" {
		channels = append(channels, fmt.Sprintf("user-%s", e.UserID))
	}
	if e.VendorID != "" {
		channels = append(channels, fmt.Sprintf("vendor-%s", e.VendorID))
	}
	return channels
}

// Recorder keeps published events in memory.
type Recorder struct {
	ch chan Event
}

func NewRecorder(size int) *Recorder {
	return &Recorder{ch: make(chan Event, size)}
}

func (r *Recorder) Publish(_ context.Context, e Event) {
	select {
	case r.ch <- e:
	default:
	}
}

// Drain returns every event recorded so far.
func (r *Recorder) Drain() []Event {
	var out []Event
	for {
		select {
		case e := <-r.ch:
			out = append(out, e)
		default:
			return out
		}
	}
}
