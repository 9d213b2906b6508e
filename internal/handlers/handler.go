package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/carebridge/carebridge-api/internal/middleware"
	"github.com/carebridge/carebridge-api/internal/models"
	"github.com/carebridge/carebridge-api/internal/realtime"
	"github.com/carebridge/carebridge-api/internal/services"
	"github.com/carebridge/carebridge-api/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindDoctorInHospital(ctx context.Context, doctorID, hospitalID primitive.ObjectID) (*models.User, error)
	Update(ctx context.Context, id primitive.ObjectID, upd models.UserUpdate) (*models.User, error)
}

type HospitalStore interface {
	Create(ctx context.Context, h *models.Hospital) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Hospital, error)
	List(ctx context.Context) ([]models.Hospital, error)
	Update(ctx context.Context, id primitive.ObjectID, upd models.HospitalUpdate) (*models.Hospital, error)
	Near(ctx context.Context, q utils.NearQuery) ([]models.Hospital, error)
}

type DoctorStore interface {
	Create(ctx context.Context, p *models.DoctorProfile) error
	FindByUserID(ctx context.Context, userID primitive.ObjectID) (*models.DoctorProfile, error)
	Update(ctx context.Context, userID primitive.ObjectID, upd models.DoctorProfileUpdate) (*models.DoctorProfile, error)
	AddQualification(ctx context.Context, userID primitive.ObjectID, q models.Qualification) (*models.DoctorProfile, error)
	Search(ctx context.Context, q models.DoctorSearch) ([]models.DoctorProfile, error)
	Near(ctx context.Context, q utils.NearQuery, specialization string) ([]models.DoctorProfile, error)
}

type AppointmentStore interface {
	Create(ctx context.Context, a *models.Appointment) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Appointment, error)
	List(ctx context.Context, f models.AppointmentFilter) ([]models.Appointment, error)
	ListForDoctorDay(ctx context.Context, doctor primitive.ObjectID, day time.Time) ([]models.Appointment, error)
	TakenSlots(ctx context.Context, doctor primitive.ObjectID, day time.Time) (map[string]bool, error)
	TransitionStatus(ctx context.Context, id primitive.ObjectID, to string, upd models.AppointmentStatusUpdate) (*models.Appointment, error)
}

type QueueStore interface {
	Create(ctx context.Context, q *models.Queue) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Queue, error)
	ListByDoctor(ctx context.Context, doctor primitive.ObjectID, day *time.Time) ([]models.Queue, error)
	ListByHospital(ctx context.Context, hospital primitive.ObjectID) ([]models.Queue, error)
	ListByPatient(ctx context.Context, patient primitive.ObjectID) ([]models.Queue, error)
	AddEntry(ctx context.Context, id primitive.ObjectID, e models.QueueEntry) (*models.Queue, *models.QueueEntry, error)
	UpdateEntryStatus(ctx context.Context, id, entryID primitive.ObjectID, to string) (*models.Queue, *models.QueueEntry, error)
	SetStatus(ctx context.Context, id primitive.ObjectID, to string) (*models.Queue, error)
}

// Notifier sends patient notifications. Implementations must not block.
type Notifier interface {
	AppointmentBooked(patient, doctor *models.User, apt *models.Appointment)
	AppointmentCancelled(patient *models.User, apt *models.Appointment)
	QueueTurn(patient *models.User, q *models.Queue, e *models.QueueEntry)
}

type ChatAssistant interface {
	Enabled() bool
	Reply(ctx context.Context, message string) (string, error)
	AnalyzeReport(ctx context.Context, image, prompt string) (string, error)
}

type DiseasePredictor interface {
	Enabled() bool
	Symptoms(ctx context.Context) ([]string, error)
	Predict(ctx context.Context, symptoms []string) (*services.Prediction, error)
}

type MetricsRecorder interface {
	BookingAttempt(outcome string)
	QueueJoinAttempt(outcome string)
	EventPublished(eventType string, err error)
}

// Deps is everything the handlers need. Optional fields fall back to defaults
// in NewHandler.
type Deps struct {
	Users        UserStore
	Hospitals    HospitalStore
	Doctors      DoctorStore
	Appointments AppointmentStore
	Queues       QueueStore

	NotificationSvc Notifier
	Chat            ChatAssistant
	Predictor       DiseasePredictor
	Events          realtime.Publisher
	Hub             *realtime.Hub
	Tokens          *utils.TokenManager
	Metrics         MetricsRecorder
	Log             zerolog.Logger

	Location            *time.Location
	CancellationWindow  time.Duration
	DefaultConsultation int
	Ping                func(ctx context.Context) error
	Now                 func() time.Time
}

type Handler struct {
	Deps
}

func NewHandler(d Deps) *Handler {
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.DefaultConsultation <= 0 {
		d.DefaultConsultation = 15
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Metrics == nil {
		d.Metrics = noopMetrics{}
	}
	return &Handler{Deps: d}
}

type noopMetrics struct{}

func (noopMetrics) BookingAttempt(string)         {}
func (noopMetrics) QueueJoinAttempt(string)       {}
func (noopMetrics) EventPublished(string, error) {}

func (h *Handler) now() time.Time { return h.Now().UTC() }

// identity is always present behind middleware.Auth.
func identity(c *gin.Context) middleware.Identity {
	id, _ := middleware.CurrentIdentity(c)
	return id
}

// objectIDParam parses a path parameter, writing a 400 when it is malformed.
func objectIDParam(c *gin.Context, name string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid " + name})
		return primitive.NilObjectID, false
	}
	return id, true
}

// dayQuery reads ?date=, defaulting to today in the clinic time zone.
func (h *Handler) dayQuery(c *gin.Context) (time.Time, bool) {
	raw := c.Query("date")
	if raw == "" {
		return models.Today(h.now(), h.Location), true
	}
	day, err := models.ParseDay(raw, h.Location)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return time.Time{}, false
	}
	return day, true
}

// consultationMinutes is the doctor's average consultation length or the
// configured default.
func (h *Handler) consultationMinutes(ctx context.Context, doctor primitive.ObjectID) int {
	p, err := h.Doctors.FindByUserID(ctx, doctor)
	if err != nil {
		return h.DefaultConsultation
	}
	return p.ConsultationMinutes(h.DefaultConsultation)
}

func (h *Handler) Health(c *gin.Context) {
	if h.Ping != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.Ping(ctx); err != nil {
			h.Log.Warn().Err(err).Msg("health check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
