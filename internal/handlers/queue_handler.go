package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/carebridge/carebridge-api/internal/middleware"
	"github.com/carebridge/carebridge-api/internal/models"
	"github.com/carebridge/carebridge-api/internal/store"
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type CreateQueueRequest struct {
	HospitalID string `json:"hospitalId" binding:"required"`
	DoctorID   string `json:"doctorId" binding:"required"`
	Date       string `json:"date"`
}

type JoinQueueRequest struct {
	PatientID       string     `json:"patientId"`
	Reason          string     `json:"reason"`
	AppointmentTime *time.Time `json:"appointmentTime"`
	Priority        int        `json:"priority" binding:"min=0"`
}

type StatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// queueView hides other patients' names and visit reasons from patients.
func queueView(id middleware.Identity, q *models.Queue) models.Queue {
	if id.Role == models.RolePatient {
		return q.VisibleTo(id.UserID)
	}
	return *q
}

// canManageQueue: staff of the queue's hospital and the queue's own doctor.
func canManageQueue(id middleware.Identity, q *models.Queue) bool {
	switch id.Role {
	case models.RoleStaff:
		return id.InHospital(q.HospitalID)
	case models.RoleDoctor:
		return id.UserID == q.DoctorID
	}
	return false
}

func (h *Handler) loadQueue(c *gin.Context) (*models.Queue, bool) {
	id, ok := objectIDParam(c, "id")
	if !ok {
		return nil, false
	}
	q, err := h.Queues.FindByID(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return nil, false
	}
	return q, true
}

func (h *Handler) CreateQueue(c *gin.Context) {
	var req CreateQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	hospitalID, err1 := primitive.ObjectIDFromHex(req.HospitalID)
	doctorID, err2 := primitive.ObjectIDFromHex(req.DoctorID)
	if err1 != nil || err2 != nil {
		badRequest(c, "Invalid hospitalId or doctorId")
		return
	}
	day := models.Today(h.now(), h.Location)
	if req.Date != "" {
		d, err := models.ParseDay(req.Date, h.Location)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		day = d
	}

	q := models.Queue{HospitalID: hospitalID, DoctorID: doctorID, Date: day}
	if !canManageQueue(identity(c), &q) {
		forbidden(c)
		return
	}

	ctx := c.Request.Context()
	if _, err := h.Hospitals.FindByID(ctx, hospitalID); err != nil {
		h.respondError(c, err)
		return
	}
	if _, err := h.Users.FindDoctorInHospital(ctx, doctorID, hospitalID); err != nil {
		h.respondError(c, err)
		return
	}
	q.AverageWaitTime = h.consultationMinutes(ctx, doctorID)

	if err := h.Queues.Create(ctx, &q); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"message": "A queue already exists for this doctor on that day"})
			return
		}
		h.respondError(c, err)
		return
	}

	h.publishQueue(ctx, &q)
	c.JSON(http.StatusCreated, q)
}

func (h *Handler) GetQueue(c *gin.Context) {
	q, ok := h.loadQueue(c)
	if !ok {
		return
	}
	q.ApplyWaitEstimates()
	c.JSON(http.StatusOK, queueView(identity(c), q))
}

// JoinQueue appends a waiting entry. Patients join as themselves; staff and
// doctors name the patient.
func (h *Handler) JoinQueue(c *gin.Context) {
	q, ok := h.loadQueue(c)
	if !ok {
		return
	}
	var req JoinQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	id := identity(c)
	patientID := id.UserID
	if id.Role == models.RolePatient {
		if req.PatientID != "" && req.PatientID != id.UserID.Hex() {
			forbidden(c)
			return
		}
		req.Priority = 0
	} else {
		if !canManageQueue(id, q) {
			forbidden(c)
			return
		}
		pid, err := primitive.ObjectIDFromHex(req.PatientID)
		if err != nil {
			badRequest(c, "patientId is required")
			return
		}
		patient, err := h.Users.FindByID(ctx, pid)
		if err != nil {
			h.respondError(c, err)
			return
		}
		if patient.Role != models.RolePatient {
			c.JSON(http.StatusNotFound, gin.H{"message": "Patient not found"})
			return
		}
		patientID = pid
	}

	now := h.now()
	appointmentTime := now
	if req.AppointmentTime != nil {
		appointmentTime = req.AppointmentTime.UTC()
	}
	entry := models.NewQueueEntry(patientID, req.Reason, appointmentTime, req.Priority, now)

	updated, added, err := h.Queues.AddEntry(ctx, q.ID, entry)
	if err != nil {
		h.Metrics.QueueJoinAttempt(joinOutcome(err))
		h.respondError(c, err)
		return
	}
	h.Metrics.QueueJoinAttempt("ok")

	updated.ApplyWaitEstimates()
	h.publishQueue(ctx, updated, patientID)
	if added != nil {
		h.Log.Info().Str("queue", updated.ID.Hex()).Int("number", added.QueueNumber).Msg("patient joined queue")
	}
	c.JSON(http.StatusCreated, queueView(id, updated))
}

func joinOutcome(err error) string {
	switch {
	case errors.Is(err, models.ErrAlreadyInQueue):
		return "duplicate"
	case errors.Is(err, models.ErrQueueNotActive):
		return "closed"
	case errors.Is(err, store.ErrConflict):
		return "conflict"
	}
	return "error"
}

// UpdateQueueEntry moves an entry along waiting -> in_progress -> completed.
func (h *Handler) UpdateQueueEntry(c *gin.Context) {
	q, ok := h.loadQueue(c)
	if !ok {
		return
	}
	entryID, ok := objectIDParam(c, "entryId")
	if !ok {
		return
	}
	if !canManageQueue(identity(c), q) {
		forbidden(c)
		return
	}
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if !models.ValidEntryStatus(req.Status) {
		badRequest(c, fmt.Sprintf("Unknown status %q", req.Status))
		return
	}

	h.changeEntry(c, q, entryID, req.Status)
}

// LeaveQueue cancels an entry. Patients may only cancel their own.
func (h *Handler) LeaveQueue(c *gin.Context) {
	q, ok := h.loadQueue(c)
	if !ok {
		return
	}
	entryID, ok := objectIDParam(c, "entryId")
	if !ok {
		return
	}
	e := q.Entry(entryID)
	if e == nil {
		h.respondError(c, models.ErrEntryNotFound)
		return
	}
	id := identity(c)
	if id.Role == models.RolePatient && e.PatientID != id.UserID {
		forbidden(c)
		return
	}
	if id.Role != models.RolePatient && !canManageQueue(id, q) {
		forbidden(c)
		return
	}

	h.changeEntry(c, q, entryID, models.EntryCancelled)
}

func (h *Handler) changeEntry(c *gin.Context, q *models.Queue, entryID primitive.ObjectID, to string) {
	ctx := c.Request.Context()
	updated, e, err := h.Queues.UpdateEntryStatus(ctx, q.ID, entryID, to)
	if err != nil {
		h.respondError(c, err)
		return
	}

	updated.ApplyWaitEstimates()
	var patients []primitive.ObjectID
	if e != nil {
		patients = append(patients, e.PatientID)
		if to == models.EntryInProgress {
			h.notifyTurn(ctx, updated, e)
		}
	}
	h.publishQueue(ctx, updated, patients...)
	c.JSON(http.StatusOK, queueView(identity(c), updated))
}

func (h *Handler) notifyTurn(ctx context.Context, q *models.Queue, e *models.QueueEntry) {
	if h.NotificationSvc == nil {
		return
	}
	patient, err := h.Users.FindByID(ctx, e.PatientID)
	if err != nil {
		h.Log.Warn().Err(err).Msg("queue sms: load patient")
		return
	}
	h.NotificationSvc.QueueTurn(patient, q, e)
}

func (h *Handler) SetQueueStatus(c *gin.Context) {
	q, ok := h.loadQueue(c)
	if !ok {
		return
	}
	if !canManageQueue(identity(c), q) {
		forbidden(c)
		return
	}
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if !models.ValidQueueStatus(req.Status) {
		badRequest(c, fmt.Sprintf("Unknown status %q", req.Status))
		return
	}

	ctx := c.Request.Context()
	updated, err := h.Queues.SetStatus(ctx, q.ID, req.Status)
	if err != nil {
		h.respondError(c, err)
		return
	}
	updated.ApplyWaitEstimates()
	h.publishQueue(ctx, updated)
	c.JSON(http.StatusOK, updated)
}

func (h *Handler) DoctorQueues(c *gin.Context) {
	doctorID, ok := objectIDParam(c, "doctorId")
	if !ok {
		return
	}
	var day *time.Time
	if c.Query("date") != "" {
		d, ok := h.dayQuery(c)
		if !ok {
			return
		}
		day = &d
	}
	queues, err := h.Queues.ListByDoctor(c.Request.Context(), doctorID, day)
	h.respondQueues(c, queues, err)
}

func (h *Handler) HospitalQueues(c *gin.Context) {
	hospitalID, ok := objectIDParam(c, "hospitalId")
	if !ok {
		return
	}
	queues, err := h.Queues.ListByHospital(c.Request.Context(), hospitalID)
	h.respondQueues(c, queues, err)
}

func (h *Handler) PatientQueues(c *gin.Context) {
	patientID, ok := objectIDParam(c, "patientId")
	if !ok {
		return
	}
	id := identity(c)
	if id.Role == models.RolePatient && id.UserID != patientID {
		forbidden(c)
		return
	}
	queues, err := h.Queues.ListByPatient(c.Request.Context(), patientID)
	h.respondQueues(c, queues, err)
}

func (h *Handler) respondQueues(c *gin.Context, queues []models.Queue, err error) {
	if err != nil {
		h.respondError(c, err)
		return
	}
	id := identity(c)
	out := make([]models.Queue, len(queues))
	for i := range queues {
		queues[i].ApplyWaitEstimates()
		out[i] = queueView(id, &queues[i])
	}
	c.JSON(http.StatusOK, out)
}
