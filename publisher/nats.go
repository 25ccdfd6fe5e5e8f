// Package publisher pushes reconciled updates onto NATS for downstream
// consumers (displays, archival, alerting).
package publisher

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// Metrics is the slice of instrumentation the publisher reports into.
type Metrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
}

// NATSPublisher publishes per-trip status messages and per-vehicle position
// messages on subjects rooted at a configurable prefix.
type NATSPublisher struct {
	nc      *nats.Conn
	prefix  string
	metrics Metrics
}

func NewNATSPublisher(url, prefix string, m Metrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("transit-tracker"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			log.Printf("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Printf("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{nc: nc, prefix: subjectToken(prefix), metrics: m}, nil
}

// Close drains buffered messages; Drain closes the connection itself once
// the flush completes.
func (p *NATSPublisher) Close() {
	if p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		log.Printf("nats drain: %v", err)
		p.nc.Close()
	}
}

// TripStatusMessage is the wire shape of one trip update notification.
type TripStatusMessage struct {
	TripID    string    `json:"tripId"`
	RouteID   string    `json:"routeId"`
	Adherence string    `json:"adherence"`
	DelaySec  int       `json:"delaySec"`
	Canceled  bool      `json:"canceled"`
	UpdatedAt time.Time `json:"updatedAt"`
	Version   uint64    `json:"snapshotVersion"`
}

// PositionMessage is the wire shape of one vehicle position notification.
type PositionMessage struct {
	VehicleID string  `json:"vehicleId"`
	TripID    string  `json:"tripId,omitempty"`
	RouteID   string  `json:"routeId,omitempty"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Bearing   float64 `json:"bearing,omitempty"`
	SpeedMps  float64 `json:"speedMps,omitempty"`
	Timestamp int64   `json:"timestamp"`
	Version   uint64  `json:"snapshotVersion"`
}

// PublishTripStatus emits msg on <prefix>.trip.<route>.<trip>.
func (p *NATSPublisher) PublishTripStatus(msg TripStatusMessage) error {
	subject := fmt.Sprintf("%s.trip.%s.%s", p.prefix, subjectToken(msg.RouteID), subjectToken(msg.TripID))
	return p.publish(subject, msg)
}

// PublishPosition emits msg on <prefix>.vehicle.<vehicle>.
func (p *NATSPublisher) PublishPosition(msg PositionMessage) error {
	subject := fmt.Sprintf("%s.vehicle.%s", p.prefix, subjectToken(msg.VehicleID))
	return p.publish(subject, msg)
}

func (p *NATSPublisher) publish(subject string, msg any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
