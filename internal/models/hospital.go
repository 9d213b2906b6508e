package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// GeoPoint is a GeoJSON point. Coordinates are stored [longitude, latitude].
type GeoPoint struct {
	Type        string    `bson:"type" json:"type"`
	Coordinates []float64 `bson:"coordinates" json:"coordinates"`
}

func NewPoint(latitude, longitude float64) GeoPoint {
	return GeoPoint{Type: "Point", Coordinates: []float64{longitude, latitude}}
}

func (p GeoPoint) Latitude() float64 {
	if len(p.Coordinates) != 2 {
		return 0
	}
	return p.Coordinates[1]
}

func (p GeoPoint) Longitude() float64 {
	if len(p.Coordinates) != 2 {
		return 0
	}
	return p.Coordinates[0]
}

func (p GeoPoint) Valid() bool {
	if p.Type != "Point" || len(p.Coordinates) != 2 {
		return false
	}
	lat, lng := p.Latitude(), p.Longitude()
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

type Hospital struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name      string             `bson:"name" json:"name"`
	Address   string             `bson:"address" json:"address"`
	Location  GeoPoint           `bson:"location" json:"location"`
	Phone     string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Email     string             `bson:"email,omitempty" json:"email,omitempty"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`

	// Distance in meters from the query point; only set by proximity search.
	Distance float64 `bson:"distance,omitempty" json:"distance,omitempty"`
}

type HospitalUpdate struct {
	Name     *string   `json:"name"`
	Address  *string   `json:"address"`
	Location *GeoPoint `json:"location"`
	Phone    *string   `json:"phone"`
	Email    *string   `json:"email"`
}

func (u HospitalUpdate) Empty() bool {
	return u.Name == nil && u.Address == nil && u.Location == nil && u.Phone == nil && u.Email == nil
}
