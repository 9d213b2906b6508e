package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/carebridge/carebridge-api/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const maxNumberAttempts = 5

type AppointmentStore struct {
	coll  *mongo.Collection
	clock clock
}

func NewAppointmentStore(db *mongo.Database) *AppointmentStore {
	return &AppointmentStore{coll: db.Collection(AppointmentsCollection)}
}

// Create inserts a scheduled appointment and assigns the next queue number
// for the doctor's day. The unique index on (doctor, date, queueNumber)
// settles races between concurrent bookings; a taken slot yields ErrDuplicate.
func (s *AppointmentStore) Create(ctx context.Context, a *models.Appointment) error {
	now := s.clock.now()
	a.Date = models.Day(a.Date)
	a.Status = models.StatusScheduled
	a.ActiveSlot = a.StartTime
	a.CreatedAt, a.UpdatedAt = now, now

	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		n, err := s.lastQueueNumber(ctx, a.DoctorID, a.Date)
		if err != nil {
			return err
		}
		a.ID = primitive.NewObjectID()
		a.QueueNumber = n + 1

		_, err = s.coll.InsertOne(ctx, a)
		switch {
		case err == nil:
			return nil
		case duplicateOn(err, activeSlotIndex):
			return fmt.Errorf("slot %s: %w", a.StartTime, ErrDuplicate)
		case mongo.IsDuplicateKeyError(err):
			continue
		default:
			return fmt.Errorf("insert appointment: %w", err)
		}
	}
	return fmt.Errorf("assign queue number: %w", ErrConflict)
}

func (s *AppointmentStore) lastQueueNumber(ctx context.Context, doctor primitive.ObjectID, day time.Time) (int, error) {
	var last models.Appointment
	opts := options.FindOne().SetSort(bson.D{{Key: "queueNumber", Value: -1}}).SetProjection(bson.M{"queueNumber": 1})
	err := s.coll.FindOne(ctx, bson.M{"doctor": doctor, "date": day}, opts).Decode(&last)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read queue numbers: %w", err)
	}
	return last.QueueNumber, nil
}

func (s *AppointmentStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Appointment, error) {
	var a models.Appointment
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&a); err != nil {
		return nil, notFound(err, "appointment")
	}
	return &a, nil
}

// List returns appointments matching f ordered by date, then start time.
func (s *AppointmentStore) List(ctx context.Context, f models.AppointmentFilter) ([]models.Appointment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "startTime", Value: 1}})
	return s.find(ctx, appointmentFilter(f), opts)
}

// ListForDoctorDay returns one doctor's appointments for a day in queue order.
func (s *AppointmentStore) ListForDoctorDay(ctx context.Context, doctor primitive.ObjectID, day time.Time) ([]models.Appointment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "queueNumber", Value: 1}})
	return s.find(ctx, bson.M{"doctor": doctor, "date": models.Day(day)}, opts)
}

// TakenSlots returns the start times on day still held by an appointment.
func (s *AppointmentStore) TakenSlots(ctx context.Context, doctor primitive.ObjectID, day time.Time) (map[string]bool, error) {
	filter := bson.M{"doctor": doctor, "date": models.Day(day), "activeSlot": bson.M{"$exists": true}}
	list, err := s.find(ctx, filter, options.Find().SetProjection(bson.M{"activeSlot": 1}))
	if err != nil {
		return nil, err
	}
	taken := make(map[string]bool, len(list))
	for _, a := range list {
		taken[a.ActiveSlot] = true
	}
	return taken, nil
}

// ListDueForCheckIn returns scheduled appointments on day whose start time
// lies in [from, to].
func (s *AppointmentStore) ListDueForCheckIn(ctx context.Context, day time.Time, from, to string) ([]models.Appointment, error) {
	filter := bson.M{
		"date":      models.Day(day),
		"status":    models.StatusScheduled,
		"startTime": bson.M{"$gte": from, "$lte": to},
	}
	return s.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "startTime", Value: 1}}))
}

// TransitionStatus moves an appointment to status to when its current status
// allows it. The check and the write are one conditional update.
func (s *AppointmentStore) TransitionStatus(ctx context.Context, id primitive.ObjectID, to string, upd models.AppointmentStatusUpdate) (*models.Appointment, error) {
	filter := bson.M{"_id": id, "status": bson.M{"$in": models.AppointmentPredecessors(to)}}

	var a models.Appointment
	err := s.coll.FindOneAndUpdate(ctx, filter, statusUpdate(to, upd, s.clock.now()), after()).Decode(&a)
	if err == nil {
		return &a, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	cur, ferr := s.FindByID(ctx, id)
	if ferr != nil {
		return nil, ferr
	}
	return nil, fmt.Errorf("appointment is %s, cannot become %s: %w", cur.Status, to, models.ErrInvalidTransition)
}

func (s *AppointmentStore) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Appointment, error) {
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find appointments: %w", err)
	}
	defer cursor.Close(ctx)

	list := []models.Appointment{}
	if err := cursor.All(ctx, &list); err != nil {
		return nil, fmt.Errorf("decode appointments: %w", err)
	}
	return list, nil
}

func appointmentFilter(f models.AppointmentFilter) bson.M {
	filter := bson.M{}
	if f.PatientID != nil {
		filter["patient"] = *f.PatientID
	}
	if f.DoctorID != nil {
		filter["doctor"] = *f.DoctorID
	}
	if f.HospitalID != nil {
		filter["hospital"] = *f.HospitalID
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	date := bson.M{}
	if f.From != nil {
		date["$gte"] = models.Day(*f.From)
	}
	if f.Before != nil {
		date["$lt"] = models.Day(*f.Before)
	}
	if len(date) > 0 {
		filter["date"] = date
	}
	return filter
}

func statusUpdate(to string, upd models.AppointmentStatusUpdate, now time.Time) bson.M {
	set := bson.M{"status": to, "updatedAt": now}
	if upd.Notes != nil {
		set["notes"] = *upd.Notes
	}
	if upd.Prescription != nil {
		set["prescription"] = *upd.Prescription
	}
	if upd.FollowUpDate != nil {
		set["followUpDate"] = *upd.FollowUpDate
	}
	if upd.CancelReason != nil {
		set["cancelReason"] = *upd.CancelReason
	}
	update := bson.M{"$set": set, "$inc": bson.M{"version": 1}}
	if !models.HoldsSlot(to) {
		update["$unset"] = bson.M{"activeSlot": ""}
	}
	return update
}
