package handlers

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/carebridge/carebridge-api/internal/models"
	"github.com/carebridge/carebridge-api/internal/realtime"
	"github.com/carebridge/carebridge-api/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type queueFixture struct {
	*fixture
	hospital primitive.ObjectID
	doctor   primitive.ObjectID
	queue    *models.Queue
}

func newQueueFixture(t *testing.T, entries ...models.QueueEntry) *queueFixture {
	q := &queueFixture{
		fixture:  newFixture(t),
		hospital: primitive.NewObjectID(),
		doctor:   primitive.NewObjectID(),
	}
	q.queue = &models.Queue{
		ID:              primitive.NewObjectID(),
		HospitalID:      q.hospital,
		DoctorID:        q.doctor,
		Date:            models.Today(testNow, time.UTC),
		Patients:        entries,
		Status:          models.QueueActive,
		AverageWaitTime: 20,
	}
	q.queues.On("FindByID", mock.Anything, q.queue.ID).Return(q.queue, nil).Maybe()
	return q
}

func entry(patient primitive.ObjectID, number int, status string) models.QueueEntry {
	e := models.NewQueueEntry(patient, "", testNow, 0, testNow)
	e.QueueNumber = number
	e.Status = status
	return e
}

func (q *queueFixture) withEntries(entries ...models.QueueEntry) *models.Queue {
	cp := *q.queue
	cp.Patients = entries
	return &cp
}

func TestCreateQueue(t *testing.T) {
	q := newQueueFixture(t)
	staff := q.token(primitive.NewObjectID(), models.RoleStaff, &q.hospital)
	body := gin.H{"hospitalId": q.hospital.Hex(), "doctorId": q.doctor.Hex()}

	q.hospitals.On("FindByID", mock.Anything, q.hospital).Return(&models.Hospital{ID: q.hospital}, nil)
	q.users.On("FindDoctorInHospital", mock.Anything, q.doctor, q.hospital).Return(&models.User{ID: q.doctor}, nil)
	q.doctors.On("FindByUserID", mock.Anything, q.doctor).Return(&models.DoctorProfile{AvgConsultationTime: 25}, nil)
	q.queues.On("Create", mock.Anything, mock.MatchedBy(func(nq *models.Queue) bool {
		return nq.DoctorID == q.doctor && nq.AverageWaitTime == 25 && nq.Date.Equal(models.Today(testNow, time.UTC))
	})).Run(func(args mock.Arguments) {
		nq := args.Get(1).(*models.Queue)
		nq.ID = primitive.NewObjectID()
		nq.Status = models.QueueActive
		nq.Patients = []models.QueueEntry{}
	}).Return(nil).Once()

	w := q.do(http.MethodPost, "/api/queues", staff, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp map[string]interface{}
	decode(t, w, &resp)
	assert.Equal(t, models.QueueActive, resp["status"])
	assert.Equal(t, []interface{}{}, resp["patients"])

	q.queues.On("Create", mock.Anything, mock.Anything).Return(store.ErrDuplicate).Once()
	w = q.do(http.MethodPost, "/api/queues", staff, body)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCreateQueueRequiresAffiliation(t *testing.T) {
	q := newQueueFixture(t)
	body := gin.H{"hospitalId": q.hospital.Hex(), "doctorId": q.doctor.Hex()}

	other := primitive.NewObjectID()
	w := q.do(http.MethodPost, "/api/queues", q.token(primitive.NewObjectID(), models.RoleStaff, &other), body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = q.do(http.MethodPost, "/api/queues", q.token(primitive.NewObjectID(), models.RolePatient, nil), body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	q.hospitals.On("FindByID", mock.Anything, q.hospital).Return(&models.Hospital{ID: q.hospital}, nil)
	q.users.On("FindDoctorInHospital", mock.Anything, q.doctor, q.hospital).
		Return(nil, fmt.Errorf("doctor: %w", store.ErrNotFound))
	w = q.do(http.MethodPost, "/api/queues", q.token(primitive.NewObjectID(), models.RoleStaff, &q.hospital), body)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestJoinQueueAsPatient(t *testing.T) {
	q := newQueueFixture(t)
	first, patient := primitive.NewObjectID(), primitive.NewObjectID()
	joined := entry(patient, 2, models.EntryWaiting)
	updated := q.withEntries(entry(first, 1, models.EntryWaiting), joined)

	q.queues.On("AddEntry", mock.Anything, q.queue.ID, mock.MatchedBy(func(e models.QueueEntry) bool {
		return e.PatientID == patient && e.Status == models.EntryWaiting && e.Priority == 0 && e.Reason == "fever"
	})).Return(updated, &joined, nil)

	w := q.do(http.MethodPost, "/api/queues/"+q.queue.ID.Hex()+"/patients",
		q.token(patient, models.RolePatient, nil), gin.H{"reason": "fever", "priority": 5})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp models.Queue
	decode(t, w, &resp)
	require.Len(t, resp.Patients, 2)
	require.NotNil(t, resp.Patients[1].EstimatedWaitTime)
	assert.Equal(t, 20, *resp.Patients[1].EstimatedWaitTime)
	assert.Contains(t, q.events.topics(), realtime.PatientTopic(patient.Hex()))
}

func TestJoinQueueDuplicate(t *testing.T) {
	q := newQueueFixture(t)
	patient := primitive.NewObjectID()
	q.queues.On("AddEntry", mock.Anything, q.queue.ID, mock.Anything).Return(nil, nil, models.ErrAlreadyInQueue)

	w := q.do(http.MethodPost, "/api/queues/"+q.queue.ID.Hex()+"/patients", q.token(patient, models.RolePatient, nil), gin.H{})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Empty(t, q.events.topics())
}

func TestJoinQueueOnBehalfOfAnotherPatient(t *testing.T) {
	q := newQueueFixture(t)
	path := "/api/queues/" + q.queue.ID.Hex() + "/patients"
	other := primitive.NewObjectID()

	w := q.do(http.MethodPost, path, q.token(primitive.NewObjectID(), models.RolePatient, nil), gin.H{"patientId": other.Hex()})
	assert.Equal(t, http.StatusForbidden, w.Code)

	staff := q.token(primitive.NewObjectID(), models.RoleStaff, &q.hospital)
	w = q.do(http.MethodPost, path, staff, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	q.users.On("FindByID", mock.Anything, other).Return(&models.User{ID: other, Role: models.RoleDoctor}, nil)
	w = q.do(http.MethodPost, path, staff, gin.H{"patientId": other.Hex()})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateQueueEntry(t *testing.T) {
	patient := primitive.NewObjectID()
	waiting := entry(patient, 1, models.EntryWaiting)

	t.Run("doctor busy", func(t *testing.T) {
		q := newQueueFixture(t, waiting)
		q.queues.On("UpdateEntryStatus", mock.Anything, q.queue.ID, waiting.ID, models.EntryInProgress).
			Return(nil, nil, models.ErrDoctorBusy)

		w := q.do(http.MethodPut, "/api/queues/"+q.queue.ID.Hex()+"/patients/"+waiting.ID.Hex(),
			q.token(q.doctor, models.RoleDoctor, &q.hospital), gin.H{"status": models.EntryInProgress})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("calls the patient in", func(t *testing.T) {
		q := newQueueFixture(t, waiting)
		started := waiting
		started.Status = models.EntryInProgress
		updated := q.withEntries(started)
		user := &models.User{ID: patient, Phone: "+15550001"}

		q.queues.On("UpdateEntryStatus", mock.Anything, q.queue.ID, waiting.ID, models.EntryInProgress).
			Return(updated, &started, nil)
		q.users.On("FindByID", mock.Anything, patient).Return(user, nil)

		w := q.do(http.MethodPut, "/api/queues/"+q.queue.ID.Hex()+"/patients/"+waiting.ID.Hex(),
			q.token(q.doctor, models.RoleDoctor, &q.hospital), gin.H{"status": models.EntryInProgress})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		q.notifier.AssertCalled(t, "QueueTurn", user, updated, &started)
	})

	t.Run("other doctors cannot manage", func(t *testing.T) {
		q := newQueueFixture(t, waiting)
		w := q.do(http.MethodPut, "/api/queues/"+q.queue.ID.Hex()+"/patients/"+waiting.ID.Hex(),
			q.token(primitive.NewObjectID(), models.RoleDoctor, &q.hospital), gin.H{"status": models.EntryInProgress})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("unknown status", func(t *testing.T) {
		q := newQueueFixture(t, waiting)
		w := q.do(http.MethodPut, "/api/queues/"+q.queue.ID.Hex()+"/patients/"+waiting.ID.Hex(),
			q.token(q.doctor, models.RoleDoctor, &q.hospital), gin.H{"status": "asleep"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestLeaveQueue(t *testing.T) {
	patient := primitive.NewObjectID()
	waiting := entry(patient, 1, models.EntryWaiting)

	t.Run("own entry", func(t *testing.T) {
		q := newQueueFixture(t, waiting)
		left := waiting
		left.Status = models.EntryCancelled
		q.queues.On("UpdateEntryStatus", mock.Anything, q.queue.ID, waiting.ID, models.EntryCancelled).
			Return(q.withEntries(left), &left, nil)

		w := q.do(http.MethodDelete, "/api/queues/"+q.queue.ID.Hex()+"/patients/"+waiting.ID.Hex(),
			q.token(patient, models.RolePatient, nil), nil)
		assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	})

	t.Run("someone else's entry", func(t *testing.T) {
		q := newQueueFixture(t, waiting)
		w := q.do(http.MethodDelete, "/api/queues/"+q.queue.ID.Hex()+"/patients/"+waiting.ID.Hex(),
			q.token(primitive.NewObjectID(), models.RolePatient, nil), nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("unknown entry", func(t *testing.T) {
		q := newQueueFixture(t, waiting)
		w := q.do(http.MethodDelete, "/api/queues/"+q.queue.ID.Hex()+"/patients/"+primitive.NewObjectID().Hex(),
			q.token(patient, models.RolePatient, nil), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestSetQueueStatus(t *testing.T) {
	q := newQueueFixture(t)
	closed := q.withEntries()
	closed.Status = models.QueueClosed
	q.queues.On("SetStatus", mock.Anything, q.queue.ID, models.QueueClosed).Return(closed, nil)
	q.queues.On("SetStatus", mock.Anything, q.queue.ID, models.QueueActive).Return(nil, models.ErrInvalidTransition)

	path := "/api/queues/" + q.queue.ID.Hex() + "/status"
	tok := q.token(q.doctor, models.RoleDoctor, &q.hospital)

	w := q.do(http.MethodPut, path, tok, gin.H{"status": models.QueueClosed})
	assert.Equal(t, http.StatusOK, w.Code)

	w = q.do(http.MethodPut, path, tok, gin.H{"status": models.QueueActive})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPatientQueuesIsPrivate(t *testing.T) {
	f := newFixture(t)
	patient := primitive.NewObjectID()
	f.queues.On("ListByPatient", mock.Anything, patient).Return([]models.Queue{}, nil)

	w := f.do(http.MethodGet, "/api/queues/patient/"+patient.Hex(), f.token(patient, models.RolePatient, nil), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/api/queues/patient/"+patient.Hex(), f.token(primitive.NewObjectID(), models.RolePatient, nil), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestQueueHidesOtherPatientsFromPatients(t *testing.T) {
	jane, john := primitive.NewObjectID(), primitive.NewObjectID()
	mine := entry(jane, 1, models.EntryWaiting)
	mine.Reason, mine.PatientName = "fever", "Jane Doe"
	theirs := entry(john, 2, models.EntryWaiting)
	theirs.Reason, theirs.PatientName = "chest pain", "John Roe"

	q := newQueueFixture(t, mine, theirs)
	q.queue.DoctorName = "Amina Odhiambo"
	path := "/api/queues/" + q.queue.ID.Hex()

	w := q.do(http.MethodGet, path, q.token(jane, models.RolePatient, nil), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp models.Queue
	decode(t, w, &resp)
	require.Len(t, resp.Patients, 2)
	assert.Equal(t, "Amina Odhiambo", resp.DoctorName)
	assert.Equal(t, "fever", resp.Patients[0].Reason)
	assert.Equal(t, "Jane Doe", resp.Patients[0].PatientName)
	assert.Empty(t, resp.Patients[1].Reason)
	assert.Empty(t, resp.Patients[1].PatientName)

	w = q.do(http.MethodGet, path, q.token(primitive.NewObjectID(), models.RoleStaff, &q.hospital), nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp = models.Queue{}
	decode(t, w, &resp)
	assert.Equal(t, "chest pain", resp.Patients[1].Reason)
	assert.Equal(t, "John Roe", resp.Patients[1].PatientName)
}

func TestQueueEventsHideReasonsOnSharedTopics(t *testing.T) {
	jane, john := primitive.NewObjectID(), primitive.NewObjectID()
	mine := entry(jane, 1, models.EntryWaiting)
	mine.Reason = "fever"
	theirs := entry(john, 2, models.EntryWaiting)
	theirs.Reason = "chest pain"

	q := newQueueFixture(t, mine, theirs)
	noShow := theirs
	noShow.Status = models.EntryNoShow
	updated := q.withEntries(mine, noShow)
	q.queues.On("UpdateEntryStatus", mock.Anything, q.queue.ID, theirs.ID, models.EntryNoShow).
		Return(updated, &noShow, nil)

	w := q.do(http.MethodPut, "/api/queues/"+q.queue.ID.Hex()+"/patients/"+theirs.ID.Hex(),
		q.token(q.doctor, models.RoleDoctor, &q.hospital), gin.H{"status": models.EntryNoShow})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	for _, topic := range []string{realtime.HospitalTopic(q.hospital.Hex()), realtime.DoctorTopic(q.doctor.Hex())} {
		e, ok := q.events.eventFor(topic)
		require.True(t, ok, topic)
		assert.NotContains(t, string(e.Data), "fever")
		assert.NotContains(t, string(e.Data), "chest pain")
	}

	e, ok := q.events.eventFor(realtime.PatientTopic(john.Hex()))
	require.True(t, ok)
	assert.Contains(t, string(e.Data), "chest pain")
	assert.NotContains(t, string(e.Data), "fever")
}
