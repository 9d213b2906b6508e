package client

import "time"

type GeoPoint struct {
	Type        string    `json:"type" validate:"eq=Point"`
	Coordinates []float64 `json:"coordinates" validate:"len=2"`
}

type User struct {
	ID         string `json:"id" validate:"required,len=24,hexadecimal"`
	Email      string `json:"email" validate:"required,email"`
	Role       string `json:"role" validate:"oneof=patient doctor staff"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Phone      string `json:"phone,omitempty"`
	HospitalID string `json:"hospitalId,omitempty" validate:"omitempty,len=24,hexadecimal"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	User
	Token string `json:"token" validate:"required"`
}

type Hospital struct {
	ID       string   `json:"id" validate:"required,len=24,hexadecimal"`
	Name     string   `json:"name" validate:"required"`
	Address  string   `json:"address"`
	Location GeoPoint `json:"location"`
	Phone    string   `json:"phone,omitempty"`
	Email    string   `json:"email,omitempty"`
	// Distance in meters, set by NearbyHospitals.
	Distance float64 `json:"distance,omitempty" validate:"gte=0"`
}

type Appointment struct {
	ID                string     `json:"id" validate:"required,len=24,hexadecimal"`
	PatientID         string     `json:"patient" validate:"required,len=24,hexadecimal"`
	DoctorID          string     `json:"doctor" validate:"required,len=24,hexadecimal"`
	HospitalID        string     `json:"hospital,omitempty" validate:"omitempty,len=24,hexadecimal"`
	Date              time.Time  `json:"date"`
	StartTime         string     `json:"startTime" validate:"required,datetime=15:04"`
	EndTime           string     `json:"endTime" validate:"required,datetime=15:04"`
	Status            string     `json:"status" validate:"oneof=scheduled in_queue in_progress completed cancelled no_show"`
	QueueNumber       int        `json:"queueNumber" validate:"min=1"`
	Symptoms          string     `json:"symptoms,omitempty"`
	Notes             string     `json:"notes,omitempty"`
	Prescription      string     `json:"prescription,omitempty"`
	FollowUpDate      *time.Time `json:"followUpDate,omitempty"`
	CancelReason      string     `json:"cancelReason,omitempty"`
	EstimatedWaitTime *int       `json:"estimatedWaitTime,omitempty" validate:"omitempty,min=0"`
}

type QueueEntry struct {
	ID                string     `json:"id" validate:"required,len=24,hexadecimal"`
	PatientID         string     `json:"patient" validate:"required,len=24,hexadecimal"`
	QueueNumber       int        `json:"queueNumber" validate:"min=1"`
	Status            string     `json:"status" validate:"oneof=waiting in_progress completed cancelled no_show"`
	AppointmentTime   time.Time  `json:"appointmentTime"`
	Priority          int        `json:"priority" validate:"min=0"`
	Reason            string     `json:"reason"`
	JoinedAt          time.Time  `json:"joinedAt"`
	StartedAt         *time.Time `json:"startedAt,omitempty"`
	FinishedAt        *time.Time `json:"finishedAt,omitempty"`
	EstimatedWaitTime *int       `json:"estimatedWaitTime,omitempty" validate:"omitempty,min=0"`
}

type Queue struct {
	ID              string       `json:"id" validate:"required,len=24,hexadecimal"`
	HospitalID      string       `json:"hospital" validate:"required,len=24,hexadecimal"`
	DoctorID        string       `json:"doctor" validate:"required,len=24,hexadecimal"`
	Date            time.Time    `json:"date"`
	Patients        []QueueEntry `json:"patients" validate:"dive"`
	Status          string       `json:"status" validate:"oneof=active paused closed"`
	AverageWaitTime int          `json:"averageWaitTime" validate:"min=0"`
}

// Entry returns the entry with the given id, or nil.
func (q *Queue) Entry(id string) *QueueEntry {
	for i := range q.Patients {
		if q.Patients[i].ID == id {
			return &q.Patients[i]
		}
	}
	return nil
}

type RegisterRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=8"`
	FirstName  string `json:"firstName" validate:"required"`
	LastName   string `json:"lastName" validate:"required"`
	Role       string `json:"role,omitempty" validate:"omitempty,oneof=patient doctor staff"`
	Phone      string `json:"phone,omitempty"`
	HospitalID string `json:"hospitalId,omitempty" validate:"omitempty,len=24,hexadecimal"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type BookAppointmentRequest struct {
	DoctorID  string `json:"doctorId" validate:"required,len=24,hexadecimal"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime string `json:"startTime" validate:"required,datetime=15:04"`
	Symptoms  string `json:"symptoms,omitempty"`
}

type AppointmentStatusRequest struct {
	Status       string  `json:"status" validate:"oneof=in_queue in_progress completed cancelled no_show"`
	Notes        *string `json:"notes,omitempty"`
	Prescription *string `json:"prescription,omitempty"`
	FollowUpDate *string `json:"followUpDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

type cancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

// AppointmentListOptions filters ListAppointments. Filter is upcoming, past
// or all (the default).
type AppointmentListOptions struct {
	Filter string
	Status string
}

type CreateQueueRequest struct {
	HospitalID string `json:"hospitalId" validate:"required,len=24,hexadecimal"`
	DoctorID   string `json:"doctorId" validate:"required,len=24,hexadecimal"`
	Date       string `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// JoinQueueRequest adds a patient to a queue. Patients leave PatientID empty
// to join as themselves.
type JoinQueueRequest struct {
	PatientID       string     `json:"patientId,omitempty" validate:"omitempty,len=24,hexadecimal"`
	Reason          string     `json:"reason,omitempty"`
	AppointmentTime *time.Time `json:"appointmentTime,omitempty"`
	Priority        int        `json:"priority,omitempty" validate:"min=0"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

type NearQuery struct {
	Latitude  float64
	Longitude float64
	// MaxDistance in meters; zero uses the server default.
	MaxDistance float64
}
