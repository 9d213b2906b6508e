package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	patientID = "65f1a2b3c4d5e6f708091a2b"
	doctorID  = "65f1a2b3c4d5e6f708091a2c"
	aptID     = "65f1a2b3c4d5e6f708091a2d"
	queueID   = "65f1a2b3c4d5e6f708091a2e"
	entryID   = "65f1a2b3c4d5e6f708091a2f"
	hospID    = "65f1a2b3c4d5e6f708091a30"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL + "/api/", Tokens: StaticToken("tok"), Logger: zerolog.Nop()})
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	_, err := New(Config{BaseURL: "localhost:8080"})
	assert.Error(t, err)

	_, err = New(Config{BaseURL: "ftp://example.com"})
	assert.Error(t, err)
}

func TestBookAppointment(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/appointments", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, doctorID, body["doctorId"])
		assert.Equal(t, "10:00", body["startTime"])

		writeJSON(w, http.StatusCreated, `{
			"id": "`+aptID+`", "patient": "`+patientID+`", "doctor": "`+doctorID+`",
			"date": "2026-03-09T00:00:00Z", "startTime": "10:00", "endTime": "10:30",
			"status": "scheduled", "queueNumber": 2, "estimatedWaitTime": 30
		}`)
	})

	apt, err := c.BookAppointment(context.Background(), BookAppointmentRequest{
		DoctorID: doctorID, Date: "2026-03-09", StartTime: "10:00",
	})
	require.NoError(t, err)
	assert.Equal(t, aptID, apt.ID)
	assert.Equal(t, 2, apt.QueueNumber)
	require.NotNil(t, apt.EstimatedWaitTime)
	assert.Equal(t, 30, *apt.EstimatedWaitTime)
}

func TestRequestValidation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("request should not have been sent: %s %s", r.Method, r.URL.Path)
	})
	ctx := context.Background()

	_, err := c.BookAppointment(ctx, BookAppointmentRequest{DoctorID: "nope", Date: "2026-03-09", StartTime: "10:00"})
	assert.Error(t, err)

	_, err = c.BookAppointment(ctx, BookAppointmentRequest{DoctorID: doctorID, Date: "09/03/2026", StartTime: "10:00"})
	assert.Error(t, err)

	_, err = c.Register(ctx, RegisterRequest{Email: "not-an-email", Password: "s3cretpass", FirstName: "A", LastName: "B"})
	assert.Error(t, err)

	_, err = c.JoinQueue(ctx, queueID, JoinQueueRequest{Priority: -1})
	assert.Error(t, err)
}

func TestResponseValidation(t *testing.T) {
	for name, body := range map[string]string{
		"unknown status":   `{"id":"` + aptID + `","patient":"` + patientID + `","doctor":"` + doctorID + `","startTime":"10:00","endTime":"10:30","status":"pending","queueNumber":1}`,
		"missing id":       `{"patient":"` + patientID + `","doctor":"` + doctorID + `","startTime":"10:00","endTime":"10:30","status":"scheduled","queueNumber":1}`,
		"wrapped in data":  `{"data":{"id":"` + aptID + `"}}`,
		"not json":         `<html>oops</html>`,
		"bad queue number": `{"id":"` + aptID + `","patient":"` + patientID + `","doctor":"` + doctorID + `","startTime":"10:00","endTime":"10:30","status":"scheduled","queueNumber":0}`,
	} {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, body)
			})
			_, err := c.GetAppointment(context.Background(), aptID)
			assert.ErrorIs(t, err, ErrInvalidResponse)
		})
	}
}

func TestAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, `{"message":"This time slot is already booked"}`)
	})

	_, err := c.BookAppointment(context.Background(), BookAppointmentRequest{
		DoctorID: doctorID, Date: "2026-03-09", StartTime: "10:00",
	})
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusConflict))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "This time slot is already booked", apiErr.Message)
}

func TestLoginAndWithToken(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get("Authorization"))
		mu.Unlock()
		switch r.URL.Path {
		case "/api/auth/login":
			writeJSON(w, http.StatusOK, `{"id":"`+patientID+`","email":"jane@example.com","role":"patient","token":"fresh"}`)
		case "/api/users/me":
			writeJSON(w, http.StatusOK, `{"id":"`+patientID+`","email":"jane@example.com","role":"patient"}`)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	auth, err := c.Login(ctx, "jane@example.com", "s3cretpass")
	require.NoError(t, err)
	assert.Equal(t, "fresh", auth.Token)
	assert.Equal(t, patientID, auth.ID)

	me, err := c.WithToken(auth.Token).Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", me.Email)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"Bearer tok", "Bearer fresh"}, seen)
}

func TestQueueFlow(t *testing.T) {
	queueJSON := func(status string) string {
		return `{"id":"` + queueID + `","hospital":"` + hospID + `","doctor":"` + doctorID + `",
			"date":"2026-03-02T00:00:00Z","status":"active","averageWaitTime":20,
			"patients":[{"id":"` + entryID + `","patient":"` + patientID + `","queueNumber":1,"status":"` + status + `",
			"priority":0,"reason":"","estimatedWaitTime":0}]}`
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/queues/"+queueID+"/patients":
			writeJSON(w, http.StatusCreated, queueJSON("waiting"))
		case r.Method == http.MethodPut && r.URL.Path == "/api/queues/"+queueID+"/patients/"+entryID:
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			writeJSON(w, http.StatusOK, queueJSON(body["status"]))
		case r.Method == http.MethodGet && r.URL.Path == "/api/queues/hospital/"+hospID:
			writeJSON(w, http.StatusOK, "["+queueJSON("waiting")+"]")
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	q, err := c.JoinQueue(ctx, queueID, JoinQueueRequest{Reason: "fever"})
	require.NoError(t, err)
	require.NotNil(t, q.Entry(entryID))
	assert.Equal(t, "waiting", q.Entry(entryID).Status)

	q, err = c.UpdateQueueEntry(ctx, queueID, entryID, "in_progress")
	require.NoError(t, err)
	assert.Equal(t, "in_progress", q.Entry(entryID).Status)

	_, err = c.UpdateQueueEntry(ctx, queueID, entryID, "teleported")
	assert.ErrorIs(t, err, ErrInvalidResponse)

	list, err := c.HospitalQueues(ctx, hospID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestNearbyHospitalsQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "48.85", r.URL.Query().Get("latitude"))
		assert.Equal(t, "2.35", r.URL.Query().Get("longitude"))
		assert.Empty(t, r.URL.Query().Get("maxDistance"))
		writeJSON(w, http.StatusOK, `[{"id":"`+hospID+`","name":"Hotel-Dieu","location":{"type":"Point","coordinates":[2.35,48.85]},"distance":120.5}]`)
	})

	list, err := c.NearbyHospitals(context.Background(), NearQuery{Latitude: 48.85, Longitude: 2.35})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.InDelta(t, 120.5, list[0].Distance, 0.001)
}
