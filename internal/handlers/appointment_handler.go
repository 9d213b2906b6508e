package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/carebridge/carebridge-api/internal/middleware"
	"github.com/carebridge/carebridge-api/internal/models"
	"github.com/carebridge/carebridge-api/internal/realtime"
	"github.com/carebridge/carebridge-api/internal/store"
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type BookAppointmentRequest struct {
	DoctorID  string `json:"doctorId" binding:"required"`
	Date      string `json:"date" binding:"required"`
	StartTime string `json:"startTime" binding:"required"`
	Symptoms  string `json:"symptoms"`
}

type UpdateAppointmentStatusRequest struct {
	Status       string  `json:"status" binding:"required"`
	Notes        *string `json:"notes"`
	Prescription *string `json:"prescription"`
	FollowUpDate *string `json:"followUpDate"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason"`
}

// BookAppointment reserves a slot that lies inside the doctor's weekly
// availability and assigns the next queue number of the doctor's day.
func (h *Handler) BookAppointment(c *gin.Context) {
	var req BookAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	doctorID, err := primitive.ObjectIDFromHex(req.DoctorID)
	if err != nil {
		badRequest(c, "Invalid doctorId")
		return
	}
	day, err := models.ParseDay(req.Date, h.Location)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	start, err := models.ParseClock(req.StartTime)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	profile, err := h.Doctors.FindByUserID(ctx, doctorID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	minutes := profile.ConsultationMinutes(h.DefaultConsultation)
	apt := models.Appointment{
		PatientID:       identity(c).UserID,
		DoctorID:        doctorID,
		DoctorProfileID: profile.ID,
		HospitalID:      profile.HospitalID,
		Date:            day,
		StartTime:       models.FormatClock(start),
		Symptoms:        req.Symptoms,
	}
	if !apt.ScheduledAt(h.Location).After(h.now()) {
		h.Metrics.BookingAttempt("rejected")
		badRequest(c, "Appointment time must be in the future")
		return
	}
	if !profile.SlotFits(day, apt.StartTime, minutes) {
		h.Metrics.BookingAttempt("rejected")
		badRequest(c, "The doctor is not available at the requested time")
		return
	}
	apt.EndTime = models.FormatClock(start + minutes)

	if err := h.Appointments.Create(ctx, &apt); err != nil {
		h.Metrics.BookingAttempt("conflict")
		if errors.Is(err, store.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"message": "This time slot is already booked"})
			return
		}
		h.respondError(c, err)
		return
	}
	h.Metrics.BookingAttempt("ok")

	h.withWait(ctx, &apt)
	h.publish(ctx, realtime.EventAppointmentBooked, "appointment", apt.ID, apt, appointmentTopics(&apt))
	h.notifyBooked(ctx, &apt)

	c.JSON(http.StatusCreated, apt)
}

func (h *Handler) notifyBooked(ctx context.Context, apt *models.Appointment) {
	if h.NotificationSvc == nil {
		return
	}
	patient, err := h.Users.FindByID(ctx, apt.PatientID)
	if err != nil {
		h.Log.Warn().Err(err).Msg("booking sms: load patient")
		return
	}
	doctor, err := h.Users.FindByID(ctx, apt.DoctorID)
	if err != nil {
		h.Log.Warn().Err(err).Msg("booking sms: load doctor")
		return
	}
	h.NotificationSvc.AppointmentBooked(patient, doctor, apt)
}

func (h *Handler) notifyCancelled(ctx context.Context, apt *models.Appointment) {
	if h.NotificationSvc == nil {
		return
	}
	patient, err := h.Users.FindByID(ctx, apt.PatientID)
	if err != nil {
		h.Log.Warn().Err(err).Msg("cancellation sms: load patient")
		return
	}
	h.NotificationSvc.AppointmentCancelled(patient, apt)
}

// withWait sets the appointment's estimated wait from the doctor's day.
func (h *Handler) withWait(ctx context.Context, apt *models.Appointment) {
	if !models.WaitingAppointment(apt.Status) {
		return
	}
	day, err := h.Appointments.ListForDoctorDay(ctx, apt.DoctorID, apt.Date)
	if err != nil {
		h.Log.Warn().Err(err).Msg("estimate wait")
		return
	}
	models.ApplyAppointmentWaits(day, h.consultationMinutes(ctx, apt.DoctorID))
	for _, d := range day {
		if d.ID == apt.ID {
			apt.EstimatedWaitTime = d.EstimatedWaitTime
			return
		}
	}
}

// canView: the patient, the doctor, and staff of the appointment's hospital.
func canView(id middleware.Identity, apt *models.Appointment) bool {
	switch id.Role {
	case models.RolePatient:
		return apt.PatientID == id.UserID
	case models.RoleDoctor:
		return apt.DoctorID == id.UserID
	case models.RoleStaff:
		return apt.HospitalID != nil && id.InHospital(*apt.HospitalID)
	}
	return false
}

func (h *Handler) loadAppointment(c *gin.Context) (*models.Appointment, bool) {
	id, ok := objectIDParam(c, "id")
	if !ok {
		return nil, false
	}
	apt, err := h.Appointments.FindByID(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return nil, false
	}
	if !canView(identity(c), apt) {
		forbidden(c)
		return nil, false
	}
	return apt, true
}

func (h *Handler) GetAppointment(c *gin.Context) {
	apt, ok := h.loadAppointment(c)
	if !ok {
		return
	}
	h.withWait(c.Request.Context(), apt)
	c.JSON(http.StatusOK, apt)
}

// ListAppointments is scoped by role: patients and doctors see their own,
// staff see their hospital's. ?filter=upcoming|past|all, ?status=.
func (h *Handler) ListAppointments(c *gin.Context) {
	id := identity(c)
	var f models.AppointmentFilter
	switch id.Role {
	case models.RolePatient:
		f.PatientID = &id.UserID
	case models.RoleDoctor:
		f.DoctorID = &id.UserID
	case models.RoleStaff:
		if id.HospitalID == nil {
			forbidden(c)
			return
		}
		f.HospitalID = id.HospitalID
	default:
		forbidden(c)
		return
	}

	if status := c.Query("status"); status != "" {
		if !models.ValidAppointmentStatus(status) {
			badRequest(c, fmt.Sprintf("Unknown status %q", status))
			return
		}
		f.Status = status
	}
	today := models.Today(h.now(), h.Location)
	switch c.DefaultQuery("filter", "all") {
	case "upcoming":
		f.From = &today
	case "past":
		f.Before = &today
	case "all":
	default:
		badRequest(c, "filter must be one of upcoming, past, all")
		return
	}

	list, err := h.Appointments.List(c.Request.Context(), f)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// UpdateAppointmentStatus applies a forward transition. Notes and
// prescription are written in the same update.
func (h *Handler) UpdateAppointmentStatus(c *gin.Context) {
	apt, ok := h.loadAppointment(c)
	if !ok {
		return
	}
	var req UpdateAppointmentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if !models.ValidAppointmentStatus(req.Status) {
		badRequest(c, fmt.Sprintf("Unknown status %q", req.Status))
		return
	}

	if req.Status == models.StatusCancelled && !h.checkCancellable(c, apt) {
		return
	}

	upd := models.AppointmentStatusUpdate{Notes: req.Notes, Prescription: req.Prescription}
	if req.FollowUpDate != nil {
		d, err := models.ParseDay(*req.FollowUpDate, h.Location)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		upd.FollowUpDate = &d
	}

	ctx := c.Request.Context()
	updated, err := h.Appointments.TransitionStatus(ctx, apt.ID, req.Status, upd)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.withWait(ctx, updated)
	h.publish(ctx, realtime.EventAppointmentStatus, "appointment", updated.ID, updated, appointmentTopics(updated))
	if updated.Status == models.StatusCancelled {
		h.notifyCancelled(ctx, updated)
	}
	c.JSON(http.StatusOK, updated)
}

// CancelAppointment marks the appointment cancelled; the record is kept.
func (h *Handler) CancelAppointment(c *gin.Context) {
	apt, ok := h.loadAppointment(c)
	if !ok {
		return
	}
	if identity(c).Role == models.RoleDoctor {
		forbidden(c)
		return
	}

	var req CancelAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "Invalid request body")
		return
	}

	if !h.checkCancellable(c, apt) {
		return
	}

	ctx := c.Request.Context()
	upd := models.AppointmentStatusUpdate{}
	if req.Reason != "" {
		upd.CancelReason = &req.Reason
	}
	updated, err := h.Appointments.TransitionStatus(ctx, apt.ID, models.StatusCancelled, upd)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.publish(ctx, realtime.EventAppointmentCancelled, "appointment", updated.ID, updated, appointmentTopics(updated))
	h.notifyCancelled(ctx, updated)
	c.JSON(http.StatusOK, updated)
}

// checkCancellable writes the error response and returns false when apt can
// no longer be cancelled, either because of its status or because it starts
// within the cancellation window. Status is checked first.
func (h *Handler) checkCancellable(c *gin.Context, apt *models.Appointment) bool {
	if !models.CanTransitionAppointment(apt.Status, models.StatusCancelled) {
		h.respondError(c, fmt.Errorf("appointment is %s: %w", apt.Status, models.ErrInvalidTransition))
		return false
	}
	if apt.ScheduledAt(h.Location).Sub(h.now()) < h.CancellationWindow {
		badRequest(c, fmt.Sprintf("Appointments can only be cancelled at least %s in advance", formatWindow(h.CancellationWindow)))
		return false
	}
	return true
}

// DoctorDayQueue lists a doctor's appointments for ?date= in queue order.
func (h *Handler) DoctorDayQueue(c *gin.Context) {
	doctorID, ok := objectIDParam(c, "doctorId")
	if !ok {
		return
	}
	id := identity(c)
	if id.Role == models.RoleDoctor && id.UserID != doctorID {
		forbidden(c)
		return
	}
	day, ok := h.dayQuery(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if id.Role == models.RoleStaff {
		if id.HospitalID == nil {
			forbidden(c)
			return
		}
		if _, err := h.Users.FindDoctorInHospital(ctx, doctorID, *id.HospitalID); err != nil {
			h.respondError(c, err)
			return
		}
	}

	list, err := h.Appointments.ListForDoctorDay(ctx, doctorID, day)
	if err != nil {
		h.respondError(c, err)
		return
	}
	models.ApplyAppointmentWaits(list, h.consultationMinutes(ctx, doctorID))
	c.JSON(http.StatusOK, list)
}

func formatWindow(d time.Duration) string {
	if d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(d/time.Hour))
	}
	return d.String()
}
