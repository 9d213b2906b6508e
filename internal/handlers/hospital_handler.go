package handlers

import (
	"net/http"

	"github.com/carebridge/carebridge-api/internal/models"
	"github.com/carebridge/carebridge-api/internal/utils"
	"github.com/gin-gonic/gin"
)

type CreateHospitalRequest struct {
	Name     string          `json:"name" binding:"required"`
	Address  string          `json:"address" binding:"required"`
	Location models.GeoPoint `json:"location"`
	Phone    string          `json:"phone"`
	Email    string          `json:"email" binding:"omitempty,email"`
}

func (h *Handler) CreateHospital(c *gin.Context) {
	var req CreateHospitalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if !req.Location.Valid() {
		badRequest(c, "location must be a GeoJSON point with [longitude, latitude] coordinates")
		return
	}

	hospital := models.Hospital{
		Name:     req.Name,
		Address:  req.Address,
		Location: req.Location,
		Phone:    req.Phone,
		Email:    req.Email,
	}
	if err := h.Hospitals.Create(c.Request.Context(), &hospital); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, hospital)
}

func (h *Handler) ListHospitals(c *gin.Context) {
	hospitals, err := h.Hospitals.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, hospitals)
}

func (h *Handler) GetHospital(c *gin.Context) {
	id, ok := objectIDParam(c, "id")
	if !ok {
		return
	}
	hospital, err := h.Hospitals.FindByID(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, hospital)
}

// UpdateHospital is limited to staff of that hospital.
func (h *Handler) UpdateHospital(c *gin.Context) {
	id, ok := objectIDParam(c, "id")
	if !ok {
		return
	}
	if !identity(c).InHospital(id) {
		forbidden(c)
		return
	}

	var req models.HospitalUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	if req.Empty() {
		badRequest(c, "No update fields provided")
		return
	}
	if req.Location != nil && !req.Location.Valid() {
		badRequest(c, "location must be a GeoJSON point with [longitude, latitude] coordinates")
		return
	}

	hospital, err := h.Hospitals.Update(c.Request.Context(), id, req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, hospital)
}

// NearbyHospitals answers ?latitude=&longitude=&maxDistance= (meters).
func (h *Handler) NearbyHospitals(c *gin.Context) {
	q, err := utils.ParseNearQuery(c.Query("latitude"), c.Query("longitude"), c.Query("maxDistance"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	hospitals, err := h.Hospitals.Near(c.Request.Context(), q)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, hospitals)
}

func (h *Handler) HospitalDoctors(c *gin.Context) {
	id, ok := objectIDParam(c, "id")
	if !ok {
		return
	}
	doctors, err := h.Doctors.Search(c.Request.Context(), models.DoctorSearch{
		HospitalID:     &id,
		Specialization: c.Query("specialization"),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doctors)
}
