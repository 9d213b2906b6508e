// Package realtime delivers queue and appointment change events to
// WebSocket subscribers, locally or across instances through Redis.
package realtime

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

const (
	EventAppointmentBooked    = "appointment.booked"
	EventAppointmentStatus    = "appointment.status"
	EventAppointmentCancelled = "appointment.cancelled"
	EventQueueUpdated         = "queue.updated"
)

// Event is the message sent to subscribers of a topic.
type Event struct {
	Type         string          `json:"type"`
	Topic        string          `json:"topic"`
	ResourceType string          `json:"resourceType"`
	ResourceID   string          `json:"resourceId,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	Data         json.RawMessage `json:"data,omitempty"`
}

// Publisher fans an event out to the subscribers of its topic.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

func HospitalTopic(id string) string { return "hospital:" + id }
func DoctorTopic(id string) string   { return "doctor:" + id }
func PatientTopic(id string) string  { return "patient:" + id }

// NewEvent builds one event per topic carrying the same payload.
func NewEvent(eventType, resourceType, resourceID string, payload interface{}, topics ...string) ([]Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	events := make([]Event, 0, len(topics))
	for _, topic := range topics {
		events = append(events, Event{
			Type:         eventType,
			Topic:        topic,
			ResourceType: resourceType,
			ResourceID:   resourceID,
			Timestamp:    now,
			Data:         data,
		})
	}
	return events, nil
}

// Subscriber is the identity a WebSocket client authenticated with.
type Subscriber struct {
	UserID string
	Role   string
}

// CanSubscribe reports whether s may receive events on topic. Patients may
// only follow their own patient topic; hospital and doctor boards are public.
func (s Subscriber) CanSubscribe(topic string) bool {
	kind, id, ok := strings.Cut(topic, ":")
	if !ok || id == "" {
		return false
	}
	switch kind {
	case "hospital", "doctor":
		return true
	case "patient":
		return s.Role != "patient" || id == s.UserID
	}
	return false
}
