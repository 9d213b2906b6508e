package handlers

import (
	"net/http"

	"github.com/carebridge/carebridge-api/internal/models"
	"github.com/carebridge/carebridge-api/internal/utils"
	"github.com/gin-gonic/gin"
)

func (h *Handler) GetDoctorProfile(c *gin.Context) {
	profile, err := h.Doctors.FindByUserID(c.Request.Context(), identity(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *Handler) UpdateDoctorProfile(c *gin.Context) {
	var req models.DoctorProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	if req.Empty() {
		badRequest(c, "No update fields provided")
		return
	}
	if err := req.Validate(); err != nil {
		badRequest(c, err.Error())
		return
	}

	profile, err := h.Doctors.Update(c.Request.Context(), identity(c).UserID, req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *Handler) AddQualification(c *gin.Context) {
	var req models.Qualification
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	profile, err := h.Doctors.AddQualification(c.Request.Context(), identity(c).UserID, req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// SearchDoctors filters by ?specialization= and, with ?date=, by doctors
// who work on that weekday.
func (h *Handler) SearchDoctors(c *gin.Context) {
	q := models.DoctorSearch{Specialization: c.Query("specialization")}
	if c.Query("date") != "" {
		day, ok := h.dayQuery(c)
		if !ok {
			return
		}
		q.Day = day.Weekday().String()
	}

	doctors, err := h.Doctors.Search(c.Request.Context(), q)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doctors)
}

func (h *Handler) NearbyDoctors(c *gin.Context) {
	q, err := utils.ParseNearQuery(c.Query("latitude"), c.Query("longitude"), c.Query("maxDistance"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	doctors, err := h.Doctors.Near(c.Request.Context(), q, c.Query("specialization"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doctors)
}

// DoctorAvailability lists the start times still free on ?date=.
func (h *Handler) DoctorAvailability(c *gin.Context) {
	doctorID, ok := objectIDParam(c, "id")
	if !ok {
		return
	}
	day, ok := h.dayQuery(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	profile, err := h.Doctors.FindByUserID(ctx, doctorID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	taken, err := h.Appointments.TakenSlots(ctx, doctorID, day)
	if err != nil {
		h.respondError(c, err)
		return
	}

	minutes := profile.ConsultationMinutes(h.DefaultConsultation)
	slots := []string{}
	now := h.now()
	for _, s := range profile.FreeSlots(day, minutes, taken) {
		if at, err := models.At(day, s, h.Location); err == nil && at.After(now) {
			slots = append(slots, s)
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"doctorId":            doctorID,
		"date":                day.Format("2006-01-02"),
		"avgConsultationTime": minutes,
		"slots":               slots,
	})
}
