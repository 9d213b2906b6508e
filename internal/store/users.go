package store

import (
	"context"
	"fmt"

	"github.com/carebridge/carebridge-api/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type UserStore struct {
	coll  *mongo.Collection
	clock clock
}

func NewUserStore(db *mongo.Database) *UserStore {
	return &UserStore{coll: db.Collection(UsersCollection)}
}

func (s *UserStore) Create(ctx context.Context, u *models.User) error {
	now := s.clock.now()
	u.ID = primitive.NewObjectID()
	u.Email = models.NormalizeEmail(u.Email)
	u.CreatedAt, u.UpdatedAt = now, now

	if _, err := s.coll.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("user with email %s: %w", u.Email, ErrDuplicate)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// Delete removes a user. Only used to roll back a half-finished registration.
func (s *UserStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func (s *UserStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var u models.User
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return nil, notFound(err, "user")
	}
	return &u, nil
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.coll.FindOne(ctx, bson.M{"email": models.NormalizeEmail(email)}).Decode(&u); err != nil {
		return nil, notFound(err, "user")
	}
	return &u, nil
}

// FindDoctorInHospital returns the doctor only when they are affiliated with hospitalID.
func (s *UserStore) FindDoctorInHospital(ctx context.Context, doctorID, hospitalID primitive.ObjectID) (*models.User, error) {
	var u models.User
	filter := bson.M{"_id": doctorID, "role": models.RoleDoctor, "hospitalId": hospitalID}
	if err := s.coll.FindOne(ctx, filter).Decode(&u); err != nil {
		return nil, notFound(err, "doctor in hospital")
	}
	return &u, nil
}

func (s *UserStore) Update(ctx context.Context, id primitive.ObjectID, upd models.UserUpdate) (*models.User, error) {
	set := bson.M{"updatedAt": s.clock.now()}
	if upd.FirstName != nil {
		set["firstName"] = *upd.FirstName
	}
	if upd.LastName != nil {
		set["lastName"] = *upd.LastName
	}
	if upd.Phone != nil {
		set["phone"] = *upd.Phone
	}

	var u models.User
	err := s.coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, after()).Decode(&u)
	if err != nil {
		return nil, notFound(err, "user")
	}
	return &u, nil
}

// ListByHospital returns the hospital's users, optionally narrowed to one role.
func (s *UserStore) ListByHospital(ctx context.Context, hospitalID primitive.ObjectID, role string) ([]models.User, error) {
	filter := bson.M{"hospitalId": hospitalID}
	if role != "" {
		filter["role"] = role
	}
	opts := options.Find().SetSort(bson.D{{Key: "lastName", Value: 1}, {Key: "firstName", Value: 1}})
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer cursor.Close(ctx)

	users := []models.User{}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return users, nil
}
