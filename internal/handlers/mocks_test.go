package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/carebridge/carebridge-api/internal/models"
	"github.com/carebridge/carebridge-api/internal/realtime"
	"github.com/carebridge/carebridge-api/internal/services"
	"github.com/carebridge/carebridge-api/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
	utils.PasswordCost = bcrypt.MinCost
}

type mockUsers struct{ mock.Mock }

func (m *mockUsers) Create(ctx context.Context, u *models.User) error {
	return m.Called(ctx, u).Error(0)
}

func (m *mockUsers) Delete(ctx context.Context, id primitive.ObjectID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockUsers) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

func (m *mockUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

func (m *mockUsers) FindDoctorInHospital(ctx context.Context, doctorID, hospitalID primitive.ObjectID) (*models.User, error) {
	args := m.Called(ctx, doctorID, hospitalID)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

func (m *mockUsers) Update(ctx context.Context, id primitive.ObjectID, upd models.UserUpdate) (*models.User, error) {
	args := m.Called(ctx, id, upd)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

type mockHospitals struct{ mock.Mock }

func (m *mockHospitals) Create(ctx context.Context, h *models.Hospital) error {
	return m.Called(ctx, h).Error(0)
}

func (m *mockHospitals) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Hospital, error) {
	args := m.Called(ctx, id)
	h, _ := args.Get(0).(*models.Hospital)
	return h, args.Error(1)
}

func (m *mockHospitals) List(ctx context.Context) ([]models.Hospital, error) {
	args := m.Called(ctx)
	l, _ := args.Get(0).([]models.Hospital)
	return l, args.Error(1)
}

func (m *mockHospitals) Update(ctx context.Context, id primitive.ObjectID, upd models.HospitalUpdate) (*models.Hospital, error) {
	args := m.Called(ctx, id, upd)
	h, _ := args.Get(0).(*models.Hospital)
	return h, args.Error(1)
}

func (m *mockHospitals) Near(ctx context.Context, q utils.NearQuery) ([]models.Hospital, error) {
	args := m.Called(ctx, q)
	l, _ := args.Get(0).([]models.Hospital)
	return l, args.Error(1)
}

type mockDoctors struct{ mock.Mock }

func (m *mockDoctors) Create(ctx context.Context, p *models.DoctorProfile) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockDoctors) FindByUserID(ctx context.Context, userID primitive.ObjectID) (*models.DoctorProfile, error) {
	args := m.Called(ctx, userID)
	p, _ := args.Get(0).(*models.DoctorProfile)
	return p, args.Error(1)
}

func (m *mockDoctors) Update(ctx context.Context, userID primitive.ObjectID, upd models.DoctorProfileUpdate) (*models.DoctorProfile, error) {
	args := m.Called(ctx, userID, upd)
	p, _ := args.Get(0).(*models.DoctorProfile)
	return p, args.Error(1)
}

func (m *mockDoctors) AddQualification(ctx context.Context, userID primitive.ObjectID, q models.Qualification) (*models.DoctorProfile, error) {
	args := m.Called(ctx, userID, q)
	p, _ := args.Get(0).(*models.DoctorProfile)
	return p, args.Error(1)
}

func (m *mockDoctors) Search(ctx context.Context, q models.DoctorSearch) ([]models.DoctorProfile, error) {
	args := m.Called(ctx, q)
	l, _ := args.Get(0).([]models.DoctorProfile)
	return l, args.Error(1)
}

func (m *mockDoctors) Near(ctx context.Context, q utils.NearQuery, specialization string) ([]models.DoctorProfile, error) {
	args := m.Called(ctx, q, specialization)
	l, _ := args.Get(0).([]models.DoctorProfile)
	return l, args.Error(1)
}

type mockAppointments struct{ mock.Mock }

func (m *mockAppointments) Create(ctx context.Context, a *models.Appointment) error {
	return m.Called(ctx, a).Error(0)
}

func (m *mockAppointments) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Appointment, error) {
	args := m.Called(ctx, id)
	a, _ := args.Get(0).(*models.Appointment)
	return a, args.Error(1)
}

func (m *mockAppointments) List(ctx context.Context, f models.AppointmentFilter) ([]models.Appointment, error) {
	args := m.Called(ctx, f)
	l, _ := args.Get(0).([]models.Appointment)
	return l, args.Error(1)
}

func (m *mockAppointments) ListForDoctorDay(ctx context.Context, doctor primitive.ObjectID, day time.Time) ([]models.Appointment, error) {
	args := m.Called(ctx, doctor, day)
	l, _ := args.Get(0).([]models.Appointment)
	return l, args.Error(1)
}

func (m *mockAppointments) TakenSlots(ctx context.Context, doctor primitive.ObjectID, day time.Time) (map[string]bool, error) {
	args := m.Called(ctx, doctor, day)
	t, _ := args.Get(0).(map[string]bool)
	return t, args.Error(1)
}

func (m *mockAppointments) TransitionStatus(ctx context.Context, id primitive.ObjectID, to string, upd models.AppointmentStatusUpdate) (*models.Appointment, error) {
	args := m.Called(ctx, id, to, upd)
	a, _ := args.Get(0).(*models.Appointment)
	return a, args.Error(1)
}

type mockQueues struct{ mock.Mock }

func (m *mockQueues) Create(ctx context.Context, q *models.Queue) error {
	return m.Called(ctx, q).Error(0)
}

func (m *mockQueues) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Queue, error) {
	args := m.Called(ctx, id)
	q, _ := args.Get(0).(*models.Queue)
	return q, args.Error(1)
}

func (m *mockQueues) ListByDoctor(ctx context.Context, doctor primitive.ObjectID, day *time.Time) ([]models.Queue, error) {
	args := m.Called(ctx, doctor, day)
	l, _ := args.Get(0).([]models.Queue)
	return l, args.Error(1)
}

func (m *mockQueues) ListByHospital(ctx context.Context, hospital primitive.ObjectID) ([]models.Queue, error) {
	args := m.Called(ctx, hospital)
	l, _ := args.Get(0).([]models.Queue)
	return l, args.Error(1)
}

func (m *mockQueues) ListByPatient(ctx context.Context, patient primitive.ObjectID) ([]models.Queue, error) {
	args := m.Called(ctx, patient)
	l, _ := args.Get(0).([]models.Queue)
	return l, args.Error(1)
}

func (m *mockQueues) AddEntry(ctx context.Context, id primitive.ObjectID, e models.QueueEntry) (*models.Queue, *models.QueueEntry, error) {
	args := m.Called(ctx, id, e)
	q, _ := args.Get(0).(*models.Queue)
	entry, _ := args.Get(1).(*models.QueueEntry)
	return q, entry, args.Error(2)
}

func (m *mockQueues) UpdateEntryStatus(ctx context.Context, id, entryID primitive.ObjectID, to string) (*models.Queue, *models.QueueEntry, error) {
	args := m.Called(ctx, id, entryID, to)
	q, _ := args.Get(0).(*models.Queue)
	entry, _ := args.Get(1).(*models.QueueEntry)
	return q, entry, args.Error(2)
}

func (m *mockQueues) SetStatus(ctx context.Context, id primitive.ObjectID, to string) (*models.Queue, error) {
	args := m.Called(ctx, id, to)
	q, _ := args.Get(0).(*models.Queue)
	return q, args.Error(1)
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) AppointmentBooked(patient, doctor *models.User, apt *models.Appointment) {
	m.Called(patient, doctor, apt)
}

func (m *mockNotifier) AppointmentCancelled(patient *models.User, apt *models.Appointment) {
	m.Called(patient, apt)
}

func (m *mockNotifier) QueueTurn(patient *models.User, q *models.Queue, e *models.QueueEntry) {
	m.Called(patient, q, e)
}

type mockChat struct{ mock.Mock }

func (m *mockChat) Enabled() bool { return m.Called().Bool(0) }

func (m *mockChat) Reply(ctx context.Context, message string) (string, error) {
	args := m.Called(ctx, message)
	return args.String(0), args.Error(1)
}

func (m *mockChat) AnalyzeReport(ctx context.Context, image, prompt string) (string, error) {
	args := m.Called(ctx, image, prompt)
	return args.String(0), args.Error(1)
}

type mockPredictor struct{ mock.Mock }

func (m *mockPredictor) Enabled() bool { return m.Called().Bool(0) }

func (m *mockPredictor) Symptoms(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	list, _ := args.Get(0).([]string)
	return list, args.Error(1)
}

func (m *mockPredictor) Predict(ctx context.Context, symptoms []string) (*services.Prediction, error) {
	args := m.Called(ctx, symptoms)
	p, _ := args.Get(0).(*services.Prediction)
	return p, args.Error(1)
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e realtime.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Topic)
	}
	return out
}

func (p *recordingPublisher) eventFor(topic string) (realtime.Event, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.events {
		if e.Topic == topic {
			return e, true
		}
	}
	return realtime.Event{}, false
}

// 2026-03-02 is a Monday.
var testNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type fixture struct {
	t         *testing.T
	users     *mockUsers
	hospitals *mockHospitals
	doctors   *mockDoctors
	appts     *mockAppointments
	queues    *mockQueues
	notifier  *mockNotifier
	chat      *mockChat
	predictor *mockPredictor
	events    *recordingPublisher
	tokens    *utils.TokenManager
	handler   *Handler
	router    *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		t:         t,
		users:     &mockUsers{},
		hospitals: &mockHospitals{},
		doctors:   &mockDoctors{},
		appts:     &mockAppointments{},
		queues:    &mockQueues{},
		notifier:  &mockNotifier{},
		chat:      &mockChat{},
		predictor: &mockPredictor{},
		events:    &recordingPublisher{},
		tokens:    utils.NewTokenManager("test-secret", time.Hour),
	}
	f.notifier.On("AppointmentBooked", mock.Anything, mock.Anything, mock.Anything).Maybe()
	f.notifier.On("AppointmentCancelled", mock.Anything, mock.Anything).Maybe()
	f.notifier.On("QueueTurn", mock.Anything, mock.Anything, mock.Anything).Maybe()

	f.handler = NewHandler(Deps{
		Users:               f.users,
		Hospitals:           f.hospitals,
		Doctors:             f.doctors,
		Appointments:        f.appts,
		Queues:              f.queues,
		NotificationSvc:     f.notifier,
		Chat:                f.chat,
		Predictor:           f.predictor,
		Events:              f.events,
		Tokens:              f.tokens,
		Log:                 zerolog.Nop(),
		Location:            time.UTC,
		CancellationWindow:  24 * time.Hour,
		DefaultConsultation: 15,
		Now:                 func() time.Time { return testNow },
	})
	f.router = gin.New()
	f.handler.Routes(f.router)

	t.Cleanup(func() {
		f.users.AssertExpectations(t)
		f.hospitals.AssertExpectations(t)
		f.doctors.AssertExpectations(t)
		f.appts.AssertExpectations(t)
		f.queues.AssertExpectations(t)
	})
	return f
}

func (f *fixture) token(user primitive.ObjectID, role string, hospital *primitive.ObjectID) string {
	hid := ""
	if hospital != nil {
		hid = hospital.Hex()
	}
	tok, err := f.tokens.Generate(user.Hex(), role, hid)
	require.NoError(f.t, err)
	return tok
}

func (f *fixture) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}
