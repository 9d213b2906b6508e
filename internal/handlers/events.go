package handlers

import (
	"context"

	"github.com/carebridge/carebridge-api/internal/models"
	"github.com/carebridge/carebridge-api/internal/realtime"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// publish delivers a change event after the write has been committed. A
// failed publish is logged and counted; it never fails the request.
func (h *Handler) publish(ctx context.Context, eventType, resourceType string, resourceID primitive.ObjectID, payload interface{}, topics []string) {
	if h.Events == nil {
		return
	}
	events, err := realtime.NewEvent(eventType, resourceType, resourceID.Hex(), payload, topics...)
	if err != nil {
		h.Log.Error().Err(err).Str("type", eventType).Msg("build event")
		return
	}
	for _, e := range events {
		err := h.Events.Publish(ctx, e)
		h.Metrics.EventPublished(eventType, err)
		if err != nil {
			h.Log.Error().Err(err).Str("type", eventType).Str("topic", e.Topic).Msg("publish event")
		}
	}
}

func appointmentTopics(a *models.Appointment) []string {
	topics := []string{realtime.DoctorTopic(a.DoctorID.Hex()), realtime.PatientTopic(a.PatientID.Hex())}
	if a.HospitalID != nil {
		topics = append(topics, realtime.HospitalTopic(a.HospitalID.Hex()))
	}
	return topics
}

// publishQueue sends queue.updated to the hospital and doctor topics, which
// patients may also follow, without any patient names or visit reasons. Each
// affected patient's own topic gets a copy that keeps their entries intact.
func (h *Handler) publishQueue(ctx context.Context, q *models.Queue, patients ...primitive.ObjectID) {
	h.publish(ctx, realtime.EventQueueUpdated, "queue", q.ID, q.VisibleTo(primitive.NilObjectID),
		[]string{realtime.HospitalTopic(q.HospitalID.Hex()), realtime.DoctorTopic(q.DoctorID.Hex())})
	for _, p := range patients {
		h.publish(ctx, realtime.EventQueueUpdated, "queue", q.ID, q.VisibleTo(p), []string{realtime.PatientTopic(p.Hex())})
	}
}
