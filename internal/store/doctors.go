package store

import (
	"context"
	"fmt"
	"regexp"

	"github.com/carebridge/carebridge-api/internal/models"
	"github.com/carebridge/carebridge-api/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type DoctorStore struct {
	coll  *mongo.Collection
	clock clock
}

func NewDoctorStore(db *mongo.Database) *DoctorStore {
	return &DoctorStore{coll: db.Collection(DoctorProfilesCollection)}
}

func (s *DoctorStore) Create(ctx context.Context, p *models.DoctorProfile) error {
	now := s.clock.now()
	p.ID = primitive.NewObjectID()
	p.CreatedAt, p.UpdatedAt = now, now
	if p.Qualifications == nil {
		p.Qualifications = []models.Qualification{}
	}
	if p.Availability == nil {
		p.Availability = []models.Availability{}
	}
	if p.Languages == nil {
		p.Languages = []string{}
	}

	if _, err := s.coll.InsertOne(ctx, p); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("doctor profile: %w", ErrDuplicate)
		}
		return fmt.Errorf("insert doctor profile: %w", err)
	}
	return nil
}

func (s *DoctorStore) FindByUserID(ctx context.Context, userID primitive.ObjectID) (*models.DoctorProfile, error) {
	var p models.DoctorProfile
	if err := s.coll.FindOne(ctx, bson.M{"userId": userID}).Decode(&p); err != nil {
		return nil, notFound(err, "doctor profile")
	}
	return &p, nil
}

func (s *DoctorStore) Update(ctx context.Context, userID primitive.ObjectID, upd models.DoctorProfileUpdate) (*models.DoctorProfile, error) {
	var p models.DoctorProfile
	err := s.coll.FindOneAndUpdate(ctx, bson.M{"userId": userID}, bson.M{"$set": doctorSet(upd, s.clock.now())}, after()).Decode(&p)
	if err != nil {
		return nil, notFound(err, "doctor profile")
	}
	return &p, nil
}

func (s *DoctorStore) AddQualification(ctx context.Context, userID primitive.ObjectID, q models.Qualification) (*models.DoctorProfile, error) {
	update := bson.M{
		"$push": bson.M{"qualifications": q},
		"$set":  bson.M{"updatedAt": s.clock.now()},
	}
	var p models.DoctorProfile
	if err := s.coll.FindOneAndUpdate(ctx, bson.M{"userId": userID}, update, after()).Decode(&p); err != nil {
		return nil, notFound(err, "doctor profile")
	}
	return &p, nil
}

// Search lists doctor profiles with the doctor's user record attached.
func (s *DoctorStore) Search(ctx context.Context, q models.DoctorSearch) ([]models.DoctorProfile, error) {
	pipeline := mongo.Pipeline{{{Key: "$match", Value: searchFilter(q)}}}
	pipeline = append(pipeline, withDoctorUser()...)
	pipeline = append(pipeline, bson.D{{Key: "$sort", Value: bson.D{{Key: "specialization", Value: 1}, {Key: "doctor.lastName", Value: 1}}}})
	return s.aggregate(ctx, pipeline)
}

// Near lists doctors whose practice location is within q.MaxDistance meters.
func (s *DoctorStore) Near(ctx context.Context, q utils.NearQuery, specialization string) ([]models.DoctorProfile, error) {
	pipeline := mongo.Pipeline{geoNearStage(q, searchFilter(models.DoctorSearch{Specialization: specialization}))}
	pipeline = append(pipeline, withDoctorUser()...)
	return s.aggregate(ctx, pipeline)
}

func (s *DoctorStore) aggregate(ctx context.Context, pipeline mongo.Pipeline) ([]models.DoctorProfile, error) {
	cursor, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate doctor profiles: %w", err)
	}
	defer cursor.Close(ctx)

	profiles := []models.DoctorProfile{}
	if err := cursor.All(ctx, &profiles); err != nil {
		return nil, fmt.Errorf("decode doctor profiles: %w", err)
	}
	return profiles, nil
}

func searchFilter(q models.DoctorSearch) bson.M {
	match := bson.M{}
	if q.Specialization != "" {
		match["specialization"] = bson.M{"$regex": regexp.QuoteMeta(q.Specialization), "$options": "i"}
	}
	if q.Day != "" {
		match["availability"] = bson.M{"$elemMatch": bson.M{"day": q.Day, "isAvailable": true}}
	}
	if q.HospitalID != nil {
		match["hospitalId"] = *q.HospitalID
	}
	return match
}

func withDoctorUser() []bson.D {
	return []bson.D{
		{{Key: "$lookup", Value: bson.M{
			"from":         UsersCollection,
			"localField":   "userId",
			"foreignField": "_id",
			"as":           "doctor",
		}}},
		{{Key: "$unwind", Value: bson.M{"path": "$doctor", "preserveNullAndEmptyArrays": true}}},
		{{Key: "$project", Value: bson.M{"doctor.password": 0}}},
	}
}

func doctorSet(upd models.DoctorProfileUpdate, now interface{}) bson.M {
	set := bson.M{"updatedAt": now}
	if upd.Specialization != nil {
		set["specialization"] = *upd.Specialization
	}
	if upd.Experience != nil {
		set["experience"] = *upd.Experience
	}
	if upd.ConsultationFee != nil {
		set["consultationFee"] = *upd.ConsultationFee
	}
	if upd.AvgConsultationTime != nil {
		set["avgConsultationTime"] = *upd.AvgConsultationTime
	}
	if upd.Availability != nil {
		set["availability"] = *upd.Availability
	}
	if upd.Languages != nil {
		set["languages"] = *upd.Languages
	}
	if upd.Bio != nil {
		set["bio"] = *upd.Bio
	}
	if upd.Location != nil {
		set["location"] = *upd.Location
	}
	return set
}
