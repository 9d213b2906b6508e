package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	StatusScheduled  = "scheduled"
	StatusInQueue    = "in_queue"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
	StatusNoShow     = "no_show"
)

var appointmentTransitions = map[string][]string{
	StatusScheduled:  {StatusInQueue, StatusCancelled, StatusNoShow},
	StatusInQueue:    {StatusInProgress, StatusCancelled, StatusNoShow},
	StatusInProgress: {StatusCompleted},
}

type Appointment struct {
	ID              primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	PatientID       primitive.ObjectID  `bson:"patient" json:"patient"`
	DoctorID        primitive.ObjectID  `bson:"doctor" json:"doctor"`
	DoctorProfileID primitive.ObjectID  `bson:"doctorProfile" json:"doctorProfile"`
	HospitalID      *primitive.ObjectID `bson:"hospital,omitempty" json:"hospital,omitempty"`
	Date            time.Time           `bson:"date" json:"date"`
	StartTime       string              `bson:"startTime" json:"startTime"`
	EndTime         string              `bson:"endTime" json:"endTime"`
	Status          string              `bson:"status" json:"status"`
	QueueNumber     int                 `bson:"queueNumber" json:"queueNumber"`
	ActiveSlot      string              `bson:"activeSlot,omitempty" json:"-"` // startTime while the slot is held
	Symptoms        string              `bson:"symptoms,omitempty" json:"symptoms,omitempty"`
	Notes           string              `bson:"notes,omitempty" json:"notes,omitempty"`
	Prescription    string              `bson:"prescription,omitempty" json:"prescription,omitempty"`
	FollowUpDate    *time.Time          `bson:"followUpDate,omitempty" json:"followUpDate,omitempty"`
	CancelReason    string              `bson:"cancelReason,omitempty" json:"cancelReason,omitempty"`
	Version         int64               `bson:"version" json:"-"`
	CreatedAt       time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time           `bson:"updatedAt" json:"updatedAt"`

	// Minutes; computed on read, never stored.
	EstimatedWaitTime *int `bson:"-" json:"estimatedWaitTime,omitempty"`
}

// AppointmentStatusUpdate carries the optional clinical fields written
// together with a status change.
type AppointmentStatusUpdate struct {
	Notes        *string
	Prescription *string
	FollowUpDate *time.Time
	CancelReason *string
}

type AppointmentFilter struct {
	PatientID  *primitive.ObjectID
	DoctorID   *primitive.ObjectID
	HospitalID *primitive.ObjectID
	Status     string
	From       *time.Time // inclusive day
	Before     *time.Time // exclusive day
}

func ValidAppointmentStatus(s string) bool {
	switch s {
	case StatusScheduled, StatusInQueue, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

func IsTerminalAppointment(s string) bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

func CanTransitionAppointment(from, to string) bool {
	for _, next := range appointmentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AppointmentPredecessors lists the statuses from which to is reachable.
func AppointmentPredecessors(to string) []string {
	var from []string
	for _, s := range []string{StatusScheduled, StatusInQueue, StatusInProgress} {
		if CanTransitionAppointment(s, to) {
			from = append(from, s)
		}
	}
	return from
}

// HoldsSlot reports whether an appointment in status s keeps its time slot.
func HoldsSlot(s string) bool {
	return s != StatusCancelled && s != StatusNoShow
}

// WaitingAppointment reports whether the appointment still counts toward
// the wait of those behind it.
func WaitingAppointment(s string) bool {
	return s == StatusScheduled || s == StatusInQueue
}

// ScheduledAt is the wall-clock start of the appointment in loc.
func (a *Appointment) ScheduledAt(loc *time.Location) time.Time {
	t, err := At(a.Date, a.StartTime, loc)
	if err != nil {
		y, m, d := a.Date.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	}
	return t
}

func EstimateWait(ahead, minutes int) int {
	if ahead < 0 {
		ahead = 0
	}
	return ahead * minutes
}

// ApplyAppointmentWaits fills EstimatedWaitTime for every appointment of one
// doctor's day that is still waiting.
func ApplyAppointmentWaits(day []Appointment, minutes int) {
	for i := range day {
		if !WaitingAppointment(day[i].Status) {
			day[i].EstimatedWaitTime = nil
			continue
		}
		ahead := 0
		for j := range day {
			if WaitingAppointment(day[j].Status) && day[j].QueueNumber < day[i].QueueNumber {
				ahead++
			}
		}
		wait := EstimateWait(ahead, minutes)
		day[i].EstimatedWaitTime = &wait
	}
}
