package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
	RoleStaff   = "staff"
)

type User struct {
	ID         primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Email      string              `bson:"email" json:"email"`
	Password   string              `bson:"password" json:"-"` // bcrypt hash, never serialized
	Role       string              `bson:"role" json:"role"`
	FirstName  string              `bson:"firstName" json:"firstName"`
	LastName   string              `bson:"lastName" json:"lastName"`
	Phone      string              `bson:"phone,omitempty" json:"phone,omitempty"`
	HospitalID *primitive.ObjectID `bson:"hospitalId,omitempty" json:"hospitalId,omitempty"`
	CreatedAt  time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// UserUpdate carries the profile fields a user may change on themselves.
type UserUpdate struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Phone     *string `json:"phone"`
}

func (u UserUpdate) Empty() bool {
	return u.FirstName == nil && u.LastName == nil && u.Phone == nil
}

func ValidRole(role string) bool {
	switch role {
	case RolePatient, RoleDoctor, RoleStaff:
		return true
	}
	return false
}

// NeedsHospital reports whether accounts of this role must be affiliated with a hospital.
func NeedsHospital(role string) bool {
	return role == RoleDoctor || role == RoleStaff
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
