package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	EntryWaiting    = "waiting"
	EntryInProgress = "in_progress"
	EntryCompleted  = "completed"
	EntryCancelled  = "cancelled"
	EntryNoShow     = "no_show"
)

const (
	QueueActive = "active"
	QueuePaused = "paused"
	QueueClosed = "closed"
)

var entryTransitions = map[string][]string{
	EntryWaiting:    {EntryInProgress, EntryCancelled, EntryNoShow},
	EntryInProgress: {EntryCompleted, EntryCancelled},
}

var queueTransitions = map[string][]string{
	QueueActive: {QueuePaused, QueueClosed},
	QueuePaused: {QueueActive, QueueClosed},
}

type QueueEntry struct {
	ID              primitive.ObjectID `bson:"_id" json:"id"`
	PatientID       primitive.ObjectID `bson:"patient" json:"patient"`
	QueueNumber     int                `bson:"queueNumber" json:"queueNumber"`
	Status          string             `bson:"status" json:"status"`
	AppointmentTime time.Time          `bson:"appointmentTime" json:"appointmentTime"`
	Priority        int                `bson:"priority" json:"priority"`
	Reason          string             `bson:"reason" json:"reason"`
	JoinedAt        time.Time          `bson:"joinedAt" json:"joinedAt"`
	StartedAt       *time.Time         `bson:"startedAt,omitempty" json:"startedAt,omitempty"`
	FinishedAt      *time.Time         `bson:"finishedAt,omitempty" json:"finishedAt,omitempty"`

	EstimatedWaitTime *int   `bson:"-" json:"estimatedWaitTime,omitempty"`
	PatientName       string `bson:"-" json:"patientName,omitempty"`
}

type Queue struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	HospitalID      primitive.ObjectID `bson:"hospital" json:"hospital"`
	DoctorID        primitive.ObjectID `bson:"doctor" json:"doctor"`
	Date            time.Time          `bson:"date" json:"date"`
	Patients        []QueueEntry       `bson:"patients" json:"patients"`
	Status          string             `bson:"status" json:"status"`
	AverageWaitTime int                `bson:"averageWaitTime" json:"averageWaitTime"` // minutes per consultation
	NextNumber      int                `bson:"nextNumber" json:"-"`                    // last issued queue number
	Version         int64              `bson:"version" json:"-"`
	CreatedAt       time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt" json:"updatedAt"`

	DoctorName string `bson:"-" json:"doctorName,omitempty"`
}

func NewQueueEntry(patient primitive.ObjectID, reason string, appointmentTime time.Time, priority int, now time.Time) QueueEntry {
	return QueueEntry{
		ID:              primitive.NewObjectID(),
		PatientID:       patient,
		Status:          EntryWaiting,
		AppointmentTime: appointmentTime,
		Priority:        priority,
		Reason:          reason,
		JoinedAt:        now,
	}
}

func ValidEntryStatus(s string) bool {
	switch s {
	case EntryWaiting, EntryInProgress, EntryCompleted, EntryCancelled, EntryNoShow:
		return true
	}
	return false
}

func ValidQueueStatus(s string) bool {
	return s == QueueActive || s == QueuePaused || s == QueueClosed
}

// ActiveEntry reports whether an entry still occupies a place in the queue.
func ActiveEntry(s string) bool {
	return s == EntryWaiting || s == EntryInProgress
}

func IsTerminalEntry(s string) bool {
	return s == EntryCompleted || s == EntryCancelled || s == EntryNoShow
}

func CanTransitionEntry(from, to string) bool {
	return contains(entryTransitions[from], to)
}

func EntryPredecessors(to string) []string {
	var from []string
	for _, s := range []string{EntryWaiting, EntryInProgress} {
		if CanTransitionEntry(s, to) {
			from = append(from, s)
		}
	}
	return from
}

func CanTransitionQueue(from, to string) bool {
	return contains(queueTransitions[from], to)
}

func QueuePredecessors(to string) []string {
	var from []string
	for _, s := range []string{QueueActive, QueuePaused} {
		if CanTransitionQueue(s, to) {
			from = append(from, s)
		}
	}
	return from
}

func (q *Queue) Entry(id primitive.ObjectID) *QueueEntry {
	for i := range q.Patients {
		if q.Patients[i].ID == id {
			return &q.Patients[i]
		}
	}
	return nil
}

// ActiveEntryFor returns the patient's waiting or in-progress entry, if any.
func (q *Queue) ActiveEntryFor(patient primitive.ObjectID) *QueueEntry {
	for i := range q.Patients {
		if q.Patients[i].PatientID == patient && ActiveEntry(q.Patients[i].Status) {
			return &q.Patients[i]
		}
	}
	return nil
}

// InProgress returns the entry currently in consultation, if any.
func (q *Queue) InProgress() *QueueEntry {
	for i := range q.Patients {
		if q.Patients[i].Status == EntryInProgress {
			return &q.Patients[i]
		}
	}
	return nil
}

// CheckJoin explains why a patient could not be appended to q.
func (q *Queue) CheckJoin(patient primitive.ObjectID) error {
	if q.Status != QueueActive {
		return ErrQueueNotActive
	}
	if q.ActiveEntryFor(patient) != nil {
		return ErrAlreadyInQueue
	}
	return nil
}

// CheckEntryTransition explains why moving entry id to status to is not
// possible on the current state of q. It returns nil when it is.
func (q *Queue) CheckEntryTransition(id primitive.ObjectID, to string) error {
	e := q.Entry(id)
	if e == nil {
		return ErrEntryNotFound
	}
	if !CanTransitionEntry(e.Status, to) {
		return ErrInvalidTransition
	}
	if to == EntryInProgress {
		if cur := q.InProgress(); cur != nil && cur.ID != id {
			return ErrDoctorBusy
		}
	}
	return nil
}

// VisibleTo returns a copy of q in which only patient's own entries keep the
// patient name and visit reason. Pass primitive.NilObjectID to hide them on
// every entry.
func (q Queue) VisibleTo(patient primitive.ObjectID) Queue {
	out := q
	out.Patients = make([]QueueEntry, len(q.Patients))
	copy(out.Patients, q.Patients)
	for i := range out.Patients {
		if patient.IsZero() || out.Patients[i].PatientID != patient {
			out.Patients[i].Reason = ""
			out.Patients[i].PatientName = ""
		}
	}
	return out
}

// ApplyWaitEstimates sets EstimatedWaitTime on every active entry: the number
// of active entries with a lower queue number times the consultation length.
func (q *Queue) ApplyWaitEstimates() {
	for i := range q.Patients {
		e := &q.Patients[i]
		if !ActiveEntry(e.Status) {
			e.EstimatedWaitTime = nil
			continue
		}
		ahead := 0
		for j := range q.Patients {
			o := q.Patients[j]
			if ActiveEntry(o.Status) && o.QueueNumber < e.QueueNumber {
				ahead++
			}
		}
		wait := EstimateWait(ahead, q.AverageWaitTime)
		e.EstimatedWaitTime = &wait
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
