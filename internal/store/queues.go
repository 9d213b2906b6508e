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

const maxJoinAttempts = 3

type QueueStore struct {
	coll  *mongo.Collection
	users *mongo.Collection
	clock clock
}

func NewQueueStore(db *mongo.Database) *QueueStore {
	return &QueueStore{coll: db.Collection(QueuesCollection), users: db.Collection(UsersCollection)}
}

// Create inserts an active, empty queue. A second queue for the same
// hospital, doctor and day yields ErrDuplicate.
func (s *QueueStore) Create(ctx context.Context, q *models.Queue) error {
	now := s.clock.now()
	q.ID = primitive.NewObjectID()
	q.Date = models.Day(q.Date)
	q.Patients = []models.QueueEntry{}
	q.Status = models.QueueActive
	q.NextNumber = 0
	q.Version = 0
	q.CreatedAt, q.UpdatedAt = now, now

	if _, err := s.coll.InsertOne(ctx, q); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("queue for %s: %w", q.Date.Format("2006-01-02"), ErrDuplicate)
		}
		return fmt.Errorf("insert queue: %w", err)
	}
	return nil
}

// FindByID returns the queue with the doctor and patient names filled in.
func (s *QueueStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Queue, error) {
	q, err := s.findOne(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.named(ctx, q)
}

func (s *QueueStore) findOne(ctx context.Context, id primitive.ObjectID) (*models.Queue, error) {
	var q models.Queue
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&q); err != nil {
		return nil, notFound(err, "queue")
	}
	return &q, nil
}

// ListByDoctor returns the doctor's queues, newest first. day narrows to one date.
func (s *QueueStore) ListByDoctor(ctx context.Context, doctor primitive.ObjectID, day *time.Time) ([]models.Queue, error) {
	filter := bson.M{"doctor": doctor}
	if day != nil {
		filter["date"] = models.Day(*day)
	}
	return s.find(ctx, filter)
}

func (s *QueueStore) ListByHospital(ctx context.Context, hospital primitive.ObjectID) ([]models.Queue, error) {
	return s.find(ctx, bson.M{"hospital": hospital})
}

// ListByPatient returns every queue the patient has an entry in.
func (s *QueueStore) ListByPatient(ctx context.Context, patient primitive.ObjectID) ([]models.Queue, error) {
	return s.find(ctx, bson.M{"patients.patient": patient})
}

// ListOpenBefore returns active or paused queues dated before day.
func (s *QueueStore) ListOpenBefore(ctx context.Context, day time.Time) ([]models.Queue, error) {
	return s.find(ctx, bson.M{
		"date":   bson.M{"$lt": models.Day(day)},
		"status": bson.M{"$in": []string{models.QueueActive, models.QueuePaused}},
	})
}

// AddEntry appends a waiting entry for the patient. The write only lands when
// the queue is still active, unchanged since it was read, and holds no active
// entry for the same patient, so two racing joins cannot both succeed.
func (s *QueueStore) AddEntry(ctx context.Context, id primitive.ObjectID, e models.QueueEntry) (*models.Queue, *models.QueueEntry, error) {
	for attempt := 0; attempt < maxJoinAttempts; attempt++ {
		q, err := s.findOne(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		if err := q.CheckJoin(e.PatientID); err != nil {
			return nil, nil, err
		}

		e.QueueNumber = q.NextNumber + 1
		var updated models.Queue
		err = s.coll.FindOneAndUpdate(ctx, joinFilter(q, e.PatientID), joinUpdate(e, s.clock.now()), after()).Decode(&updated)
		if errors.Is(err, mongo.ErrNoDocuments) {
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("join queue: %w", err)
		}
		named, err := s.named(ctx, &updated)
		if err != nil {
			return nil, nil, err
		}
		return named, named.Entry(e.ID), nil
	}
	return nil, nil, fmt.Errorf("join queue: %w", ErrConflict)
}

// UpdateEntryStatus moves one entry to status to. Moving to in_progress also
// requires that no other entry of the queue is in progress.
func (s *QueueStore) UpdateEntryStatus(ctx context.Context, id, entryID primitive.ObjectID, to string) (*models.Queue, *models.QueueEntry, error) {
	filter, update := entryStatusChange(id, entryID, to, s.clock.now())
	opts := after().SetArrayFilters(options.ArrayFilters{Filters: []interface{}{bson.M{"e._id": entryID}}})

	var updated models.Queue
	err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if err == nil {
		named, err := s.named(ctx, &updated)
		if err != nil {
			return nil, nil, err
		}
		return named, named.Entry(entryID), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil, fmt.Errorf("update queue entry: %w", err)
	}

	q, ferr := s.findOne(ctx, id)
	if ferr != nil {
		return nil, nil, ferr
	}
	if q.Status == models.QueueClosed {
		return nil, nil, models.ErrQueueNotActive
	}
	if reason := q.CheckEntryTransition(entryID, to); reason != nil {
		return nil, nil, reason
	}
	// The state that blocked the update changed before we could read it back.
	return nil, nil, fmt.Errorf("update queue entry: %w", ErrConflict)
}

// SetStatus opens, pauses or closes a queue. Closed queues stay closed.
func (s *QueueStore) SetStatus(ctx context.Context, id primitive.ObjectID, to string) (*models.Queue, error) {
	filter := bson.M{"_id": id, "status": bson.M{"$in": models.QueuePredecessors(to)}}
	update := bson.M{"$set": bson.M{"status": to, "updatedAt": s.clock.now()}, "$inc": bson.M{"version": 1}}

	var q models.Queue
	err := s.coll.FindOneAndUpdate(ctx, filter, update, after()).Decode(&q)
	if err == nil {
		return s.named(ctx, &q)
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("update queue status: %w", err)
	}
	cur, ferr := s.findOne(ctx, id)
	if ferr != nil {
		return nil, ferr
	}
	return nil, fmt.Errorf("queue is %s, cannot become %s: %w", cur.Status, to, models.ErrInvalidTransition)
}

func (s *QueueStore) find(ctx context.Context, filter bson.M) ([]models.Queue, error) {
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: -1}, {Key: "createdAt", Value: -1}})
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find queues: %w", err)
	}
	defer cursor.Close(ctx)

	queues := []models.Queue{}
	if err := cursor.All(ctx, &queues); err != nil {
		return nil, fmt.Errorf("decode queues: %w", err)
	}
	if err := s.attachNames(ctx, queues); err != nil {
		return nil, err
	}
	return queues, nil
}

func (s *QueueStore) named(ctx context.Context, q *models.Queue) (*models.Queue, error) {
	list := []models.Queue{*q}
	if err := s.attachNames(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

// attachNames sets DoctorName and every entry's PatientName with one users
// query for all the queues.
func (s *QueueStore) attachNames(ctx context.Context, queues []models.Queue) error {
	ids := queueUserIDs(queues)
	if len(ids) == 0 {
		return nil
	}
	opts := options.Find().SetProjection(bson.M{"firstName": 1, "lastName": 1})
	cursor, err := s.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return fmt.Errorf("find queue users: %w", err)
	}
	defer cursor.Close(ctx)

	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return fmt.Errorf("decode queue users: %w", err)
	}
	names := make(map[primitive.ObjectID]string, len(users))
	for i := range users {
		names[users[i].ID] = users[i].FullName()
	}
	applyNames(queues, names)
	return nil
}

func queueUserIDs(queues []models.Queue) []primitive.ObjectID {
	seen := map[primitive.ObjectID]bool{}
	var ids []primitive.ObjectID
	add := func(id primitive.ObjectID) {
		if !id.IsZero() && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, q := range queues {
		add(q.DoctorID)
		for _, e := range q.Patients {
			add(e.PatientID)
		}
	}
	return ids
}

func applyNames(queues []models.Queue, names map[primitive.ObjectID]string) {
	for i := range queues {
		q := &queues[i]
		q.DoctorName = names[q.DoctorID]
		for j := range q.Patients {
			q.Patients[j].PatientName = names[q.Patients[j].PatientID]
		}
	}
}

func activeEntryStatuses() []string {
	return []string{models.EntryWaiting, models.EntryInProgress}
}

func joinFilter(q *models.Queue, patient primitive.ObjectID) bson.M {
	return bson.M{
		"_id":     q.ID,
		"version": q.Version,
		"status":  models.QueueActive,
		"patients": bson.M{"$not": bson.M{"$elemMatch": bson.M{
			"patient": patient,
			"status":  bson.M{"$in": activeEntryStatuses()},
		}}},
	}
}

func joinUpdate(e models.QueueEntry, now time.Time) bson.M {
	return bson.M{
		"$push": bson.M{"patients": e},
		"$set":  bson.M{"nextNumber": e.QueueNumber, "updatedAt": now},
		"$inc":  bson.M{"version": 1},
	}
}

func entryStatusChange(id, entryID primitive.ObjectID, to string, now time.Time) (filter, update bson.M) {
	filter = bson.M{
		"_id":    id,
		"status": bson.M{"$ne": models.QueueClosed},
		"patients": bson.M{"$elemMatch": bson.M{
			"_id":    entryID,
			"status": bson.M{"$in": models.EntryPredecessors(to)},
		}},
	}
	if to == models.EntryInProgress {
		filter["patients.status"] = bson.M{"$ne": models.EntryInProgress}
	}

	set := bson.M{"patients.$[e].status": to, "updatedAt": now}
	switch {
	case to == models.EntryInProgress:
		set["patients.$[e].startedAt"] = now
	case models.IsTerminalEntry(to):
		set["patients.$[e].finishedAt"] = now
	}
	update = bson.M{"$set": set, "$inc": bson.M{"version": 1}}
	return filter, update
}
