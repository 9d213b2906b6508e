package handlers

import (
	"errors"
	"net/http"

	"github.com/carebridge/carebridge-api/internal/models"
	"github.com/carebridge/carebridge-api/internal/store"
	"github.com/carebridge/carebridge-api/internal/utils"
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type RegisterUserRequest struct {
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required,min=8"`
	FirstName  string `json:"firstName" binding:"required"`
	LastName   string `json:"lastName" binding:"required"`
	Role       string `json:"role"`
	Phone      string `json:"phone"`
	HospitalID string `json:"hospitalId"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// authResponse flattens the user fields next to the token.
type authResponse struct {
	*models.User
	Token string `json:"token"`
}

func (h *Handler) RegisterUser(c *gin.Context) {
	var req RegisterUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	role := req.Role
	if role == "" {
		role = models.RolePatient
	}
	if !models.ValidRole(role) {
		badRequest(c, "role must be one of patient, doctor, staff")
		return
	}

	ctx := c.Request.Context()
	var hospital *models.Hospital
	if req.HospitalID != "" || models.NeedsHospital(role) {
		hid, err := primitive.ObjectIDFromHex(req.HospitalID)
		if err != nil {
			badRequest(c, "hospitalId is required for doctor and staff accounts")
			return
		}
		if hospital, err = h.Hospitals.FindByID(ctx, hid); err != nil {
			h.respondError(c, err)
			return
		}
	}

	hashedPassword, err := utils.HashPassword(req.Password)
	if err != nil {
		h.Log.Error().Err(err).Msg("hash password")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to hash password"})
		return
	}

	user := models.User{
		Email:     req.Email,
		Password:  hashedPassword,
		Role:      role,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	}
	if hospital != nil {
		user.HospitalID = &hospital.ID
	}
	if err := h.Users.Create(ctx, &user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"message": "An account with this email already exists"})
			return
		}
		h.respondError(c, err)
		return
	}

	if role == models.RoleDoctor {
		profile := models.DoctorProfile{
			UserID:              user.ID,
			HospitalID:          user.HospitalID,
			AvgConsultationTime: h.DefaultConsultation,
		}
		if hospital != nil {
			loc := hospital.Location
			profile.Location = &loc
		}
		if err := h.Doctors.Create(ctx, &profile); err != nil {
			if derr := h.Users.Delete(ctx, user.ID); derr != nil {
				h.Log.Error().Err(derr).Str("user", user.ID.Hex()).Msg("roll back doctor registration")
			}
			h.respondError(c, err)
			return
		}
	}

	h.respondWithToken(c, http.StatusCreated, &user)
}

func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request")
		return
	}

	user, err := h.Users.FindByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid credentials"})
			return
		}
		h.respondError(c, err)
		return
	}
	if !utils.CheckPasswordHash(req.Password, user.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid credentials"})
		return
	}

	h.respondWithToken(c, http.StatusOK, user)
}

func (h *Handler) respondWithToken(c *gin.Context, status int, user *models.User) {
	hospitalID := ""
	if user.HospitalID != nil {
		hospitalID = user.HospitalID.Hex()
	}
	token, err := h.Tokens.Generate(user.ID.Hex(), user.Role, hospitalID)
	if err != nil {
		h.Log.Error().Err(err).Msg("generate token")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Could not generate token"})
		return
	}
	c.JSON(status, authResponse{User: user, Token: token})
}

// GetCurrentUser retrieves the profile of the currently authenticated user.
func (h *Handler) GetCurrentUser(c *gin.Context) {
	user, err := h.Users.FindByID(c.Request.Context(), identity(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateCurrentUser lets users change their own name and phone number.
func (h *Handler) UpdateCurrentUser(c *gin.Context) {
	var req models.UserUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	if req.Empty() {
		badRequest(c, "No update fields provided")
		return
	}

	user, err := h.Users.Update(c.Request.Context(), identity(c).UserID, req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
