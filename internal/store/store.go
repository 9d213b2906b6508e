// Package store holds the MongoDB persistence for users, hospitals, doctor
// profiles, appointments and queues. Every state change is a single
// conditional update so concurrent requests cannot overwrite each other.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
	// ErrConflict means a concurrent writer won and the bounded retries ran out.
	ErrConflict = errors.New("concurrent update, please retry")
)

const (
	UsersCollection          = "users"
	HospitalsCollection      = "hospitals"
	DoctorProfilesCollection = "doctor_profiles"
	AppointmentsCollection   = "appointments"
	QueuesCollection         = "queues"
)

const (
	queueNumberIndex = "doctor_date_queue_number"
	activeSlotIndex  = "doctor_date_active_slot"
)

// Connect dials MongoDB and verifies the connection with a ping.
func Connect(ctx context.Context, uri, database string) (*mongo.Client, *mongo.Database, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return client, client.Database(database), nil
}

type collectionIndexes struct {
	collection string
	models     []mongo.IndexModel
}

func indexSpecs() []collectionIndexes {
	return []collectionIndexes{
		{UsersCollection, []mongo.IndexModel{
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetName("email_unique")},
			{Keys: bson.D{{Key: "hospitalId", Value: 1}, {Key: "role", Value: 1}}},
		}},
		{HospitalsCollection, []mongo.IndexModel{
			{Keys: bson.D{{Key: "location", Value: "2dsphere"}}},
		}},
		{DoctorProfilesCollection, []mongo.IndexModel{
			{Keys: bson.D{{Key: "userId", Value: 1}}, Options: options.Index().SetUnique(true).SetName("user_unique")},
			{Keys: bson.D{{Key: "location", Value: "2dsphere"}}},
			{Keys: bson.D{{Key: "hospitalId", Value: 1}, {Key: "specialization", Value: 1}}},
		}},
		{AppointmentsCollection, []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "doctor", Value: 1}, {Key: "date", Value: 1}, {Key: "queueNumber", Value: 1}},
				Options: options.Index().SetUnique(true).SetName(queueNumberIndex),
			},
			{
				Keys: bson.D{{Key: "doctor", Value: 1}, {Key: "date", Value: 1}, {Key: "activeSlot", Value: 1}},
				Options: options.Index().SetUnique(true).SetName(activeSlotIndex).
					SetPartialFilterExpression(bson.M{"activeSlot": bson.M{"$exists": true}}),
			},
			{Keys: bson.D{{Key: "patient", Value: 1}, {Key: "date", Value: 1}}},
			{Keys: bson.D{{Key: "date", Value: 1}, {Key: "status", Value: 1}}},
		}},
		{QueuesCollection, []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "hospital", Value: 1}, {Key: "doctor", Value: 1}, {Key: "date", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("hospital_doctor_date"),
			},
			{Keys: bson.D{{Key: "patients.patient", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "date", Value: 1}}},
		}},
	}
}

// EnsureIndexes creates the unique and geo indexes the store relies on.
// It is idempotent.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	for _, spec := range indexSpecs() {
		if _, err := db.Collection(spec.collection).Indexes().CreateMany(ctx, spec.models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", spec.collection, err)
		}
	}
	return nil
}

func notFound(err error, what string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s %w", what, ErrNotFound)
	}
	return fmt.Errorf("find %s: %w", what, err)
}

// duplicateOn reports whether err is a duplicate key error raised by the named index.
func duplicateOn(err error, index string) bool {
	return mongo.IsDuplicateKeyError(err) && strings.Contains(err.Error(), index)
}

func after() *options.FindOneAndUpdateOptions {
	return options.FindOneAndUpdate().SetReturnDocument(options.After)
}

type clock func() time.Time

func (c clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}
