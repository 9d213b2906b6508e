package models

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Qualification struct {
	Degree      string `bson:"degree" json:"degree" binding:"required"`
	Institution string `bson:"institution" json:"institution" binding:"required"`
	Year        int    `bson:"year" json:"year"`
}

// Availability is a weekly window, e.g. Monday 09:00-17:00.
type Availability struct {
	Day         string `bson:"day" json:"day"`
	StartTime   string `bson:"startTime" json:"startTime"`
	EndTime     string `bson:"endTime" json:"endTime"`
	IsAvailable bool   `bson:"isAvailable" json:"isAvailable"`
}

type DoctorProfile struct {
	ID                  primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	UserID              primitive.ObjectID  `bson:"userId" json:"userId"`
	HospitalID          *primitive.ObjectID `bson:"hospitalId,omitempty" json:"hospitalId,omitempty"`
	Specialization      string              `bson:"specialization" json:"specialization"`
	Qualifications      []Qualification     `bson:"qualifications" json:"qualifications"`
	Experience          int                 `bson:"experience" json:"experience"`
	ConsultationFee     float64             `bson:"consultationFee" json:"consultationFee"`
	AvgConsultationTime int                 `bson:"avgConsultationTime" json:"avgConsultationTime"`
	Availability        []Availability      `bson:"availability" json:"availability"`
	Languages           []string            `bson:"languages" json:"languages"`
	Bio                 string              `bson:"bio,omitempty" json:"bio,omitempty"`
	Location            *GeoPoint           `bson:"location,omitempty" json:"location,omitempty"`
	CreatedAt           time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt           time.Time           `bson:"updatedAt" json:"updatedAt"`

	// Populated by directory queries.
	Doctor   *User   `bson:"doctor,omitempty" json:"doctor,omitempty"`
	Distance float64 `bson:"distance,omitempty" json:"distance,omitempty"`
}

type DoctorProfileUpdate struct {
	Specialization      *string         `json:"specialization"`
	Experience          *int            `json:"experience"`
	ConsultationFee     *float64        `json:"consultationFee"`
	AvgConsultationTime *int            `json:"avgConsultationTime"`
	Availability        *[]Availability `json:"availability"`
	Languages           *[]string       `json:"languages"`
	Bio                 *string         `json:"bio"`
	Location            *GeoPoint       `json:"location"`
}

func (u DoctorProfileUpdate) Empty() bool {
	return u.Specialization == nil && u.Experience == nil && u.ConsultationFee == nil &&
		u.AvgConsultationTime == nil && u.Availability == nil && u.Languages == nil &&
		u.Bio == nil && u.Location == nil
}

func (u DoctorProfileUpdate) Validate() error {
	if u.AvgConsultationTime != nil && *u.AvgConsultationTime <= 0 {
		return fmt.Errorf("avgConsultationTime must be positive")
	}
	if u.ConsultationFee != nil && *u.ConsultationFee < 0 {
		return fmt.Errorf("consultationFee must not be negative")
	}
	if u.Location != nil && !u.Location.Valid() {
		return fmt.Errorf("location must be a GeoJSON point with valid coordinates")
	}
	if u.Availability != nil {
		return ValidateAvailability(*u.Availability)
	}
	return nil
}

type DoctorSearch struct {
	Specialization string
	Day            string // weekday name, e.g. "Monday"
	HospitalID     *primitive.ObjectID
}

func ValidateAvailability(windows []Availability) error {
	for _, w := range windows {
		if !validWeekday(w.Day) {
			return fmt.Errorf("invalid availability day %q", w.Day)
		}
		start, err := ParseClock(w.StartTime)
		if err != nil {
			return err
		}
		end, err := ParseClock(w.EndTime)
		if err != nil {
			return err
		}
		if start >= end {
			return fmt.Errorf("availability on %s must start before it ends", w.Day)
		}
	}
	return nil
}

func validWeekday(day string) bool {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if d.String() == day {
			return true
		}
	}
	return false
}

// ConsultationMinutes falls back to def when the doctor has not set a duration.
func (p *DoctorProfile) ConsultationMinutes(def int) int {
	if p == nil || p.AvgConsultationTime <= 0 {
		return def
	}
	return p.AvgConsultationTime
}

// WindowsOn returns the open availability windows for the weekday of day.
func (p *DoctorProfile) WindowsOn(day time.Time) []Availability {
	weekday := day.Weekday().String()
	var out []Availability
	for _, w := range p.Availability {
		if w.Day == weekday && w.IsAvailable {
			out = append(out, w)
		}
	}
	return out
}

// SlotFits reports whether a consultation of the given length starting at
// start lies entirely inside one of the doctor's windows on that day.
func (p *DoctorProfile) SlotFits(day time.Time, start string, minutes int) bool {
	s, err := ParseClock(start)
	if err != nil {
		return false
	}
	for _, w := range p.WindowsOn(day) {
		ws, err1 := ParseClock(w.StartTime)
		we, err2 := ParseClock(w.EndTime)
		if err1 != nil || err2 != nil {
			continue
		}
		if s >= ws && s+minutes <= we {
			return true
		}
	}
	return false
}

// FreeSlots lists start times on day, stepping by the consultation length,
// that are not in taken.
func (p *DoctorProfile) FreeSlots(day time.Time, minutes int, taken map[string]bool) []string {
	slots := []string{}
	if minutes <= 0 {
		return slots
	}
	for _, w := range p.WindowsOn(day) {
		ws, err1 := ParseClock(w.StartTime)
		we, err2 := ParseClock(w.EndTime)
		if err1 != nil || err2 != nil {
			continue
		}
		for s := ws; s+minutes <= we; s += minutes {
			clock := FormatClock(s)
			if !taken[clock] {
				slots = append(slots, clock)
			}
		}
	}
	return slots
}
