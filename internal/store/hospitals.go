package store

import (
	"context"
	"fmt"

	"github.com/carebridge/carebridge-api/internal/models"
	"github.com/carebridge/carebridge-api/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type HospitalStore struct {
	coll  *mongo.Collection
	clock clock
}

func NewHospitalStore(db *mongo.Database) *HospitalStore {
	return &HospitalStore{coll: db.Collection(HospitalsCollection)}
}

func (s *HospitalStore) Create(ctx context.Context, h *models.Hospital) error {
	now := s.clock.now()
	h.ID = primitive.NewObjectID()
	h.CreatedAt, h.UpdatedAt = now, now
	if _, err := s.coll.InsertOne(ctx, h); err != nil {
		return fmt.Errorf("insert hospital: %w", err)
	}
	return nil
}

func (s *HospitalStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Hospital, error) {
	var h models.Hospital
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&h); err != nil {
		return nil, notFound(err, "hospital")
	}
	return &h, nil
}

func (s *HospitalStore) List(ctx context.Context) ([]models.Hospital, error) {
	cursor, err := s.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list hospitals: %w", err)
	}
	defer cursor.Close(ctx)

	hospitals := []models.Hospital{}
	if err := cursor.All(ctx, &hospitals); err != nil {
		return nil, fmt.Errorf("decode hospitals: %w", err)
	}
	return hospitals, nil
}

func (s *HospitalStore) Update(ctx context.Context, id primitive.ObjectID, upd models.HospitalUpdate) (*models.Hospital, error) {
	var h models.Hospital
	err := s.coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": hospitalSet(upd, s.clock.now())}, after()).Decode(&h)
	if err != nil {
		return nil, notFound(err, "hospital")
	}
	return &h, nil
}

// Near returns hospitals within q.MaxDistance meters, closest first.
func (s *HospitalStore) Near(ctx context.Context, q utils.NearQuery) ([]models.Hospital, error) {
	cursor, err := s.coll.Aggregate(ctx, mongo.Pipeline{geoNearStage(q, nil)})
	if err != nil {
		return nil, fmt.Errorf("hospitals near: %w", err)
	}
	defer cursor.Close(ctx)

	hospitals := []models.Hospital{}
	if err := cursor.All(ctx, &hospitals); err != nil {
		return nil, fmt.Errorf("decode hospitals: %w", err)
	}
	return hospitals, nil
}

func hospitalSet(upd models.HospitalUpdate, now interface{}) bson.M {
	set := bson.M{"updatedAt": now}
	if upd.Name != nil {
		set["name"] = *upd.Name
	}
	if upd.Address != nil {
		set["address"] = *upd.Address
	}
	if upd.Location != nil {
		set["location"] = *upd.Location
	}
	if upd.Phone != nil {
		set["phone"] = *upd.Phone
	}
	if upd.Email != nil {
		set["email"] = *upd.Email
	}
	return set
}

// geoNearStage sorts by distance from the query point; query narrows the
// candidates before distances are computed.
func geoNearStage(q utils.NearQuery, query bson.M) bson.D {
	near := bson.M{
		"near":          models.NewPoint(q.Latitude, q.Longitude),
		"distanceField": "distance",
		"maxDistance":   q.MaxDistance,
		"spherical":     true,
	}
	if len(query) > 0 {
		near["query"] = query
	}
	return bson.D{{Key: "$geoNear", Value: near}}
}
