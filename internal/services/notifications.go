package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/carebridge/carebridge-api/internal/models"
	"github.com/rs/zerolog"
)

const textbeltURL = "https://textbelt.com/text"

var ErrSMSRejected = errors.New("sms rejected by provider")

// NotificationService sends SMS through Textbelt. Without an API key every
// message is logged and dropped.
type NotificationService struct {
	apiKey   string
	endpoint string
	client   *http.Client
	log      zerolog.Logger
	loc      *time.Location
}

func NewNotificationService(apiKey string, loc *time.Location, log zerolog.Logger) *NotificationService {
	return &NotificationService{
		apiKey:   apiKey,
		endpoint: textbeltURL,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      log.With().Str("component", "sms").Logger(),
		loc:      loc,
	}
}

func (s *NotificationService) Enabled() bool { return s.apiKey != "" }

func (s *NotificationService) AppointmentBooked(patient *models.User, doctor *models.User, apt *models.Appointment) {
	msg := fmt.Sprintf("CareBridge: appointment with Dr. %s confirmed for %s. Your queue number is %d.",
		doctor.LastName, apt.ScheduledAt(s.loc).Format("Jan 2 at 15:04"), apt.QueueNumber)
	s.sendAsync(patient, msg)
}

func (s *NotificationService) AppointmentCancelled(patient *models.User, apt *models.Appointment) {
	msg := fmt.Sprintf("CareBridge: your appointment on %s has been cancelled.",
		apt.ScheduledAt(s.loc).Format("Jan 2 at 15:04"))
	s.sendAsync(patient, msg)
}

func (s *NotificationService) QueueTurn(patient *models.User, q *models.Queue, e *models.QueueEntry) {
	msg := fmt.Sprintf("CareBridge: it is your turn (number %d). Please proceed to the consultation room.", e.QueueNumber)
	s.sendAsync(patient, msg)
}

// sendAsync never blocks the request that triggered the message.
func (s *NotificationService) sendAsync(patient *models.User, message string) {
	if patient == nil || patient.Phone == "" {
		s.log.Debug().Msg("sms skipped: no phone number")
		return
	}
	if !s.Enabled() {
		s.log.Debug().Str("phone", patient.Phone).Msg("sms skipped: TEXTBELT_API_KEY not set")
		return
	}
	go func(phone string) {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.Send(ctx, phone, message); err != nil {
			s.log.Error().Err(err).Str("phone", phone).Msg("sms failed")
		}
	}(patient.Phone)
}

type textbeltResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	TextID  string `json:"textId"`
}

// Send delivers one SMS and waits for the provider's answer.
func (s *NotificationService) Send(ctx context.Context, phone, message string) error {
	body, err := json.Marshal(map[string]string{
		"phone":   phone,
		"message": message,
		"key":     s.apiKey,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	defer resp.Body.Close()

	var result textbeltResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode sms response (status %d): %w", resp.StatusCode, err)
	}
	if !result.Success {
		return fmt.Errorf("%w: %s", ErrSMSRejected, result.Error)
	}
	s.log.Info().Str("phone", phone).Str("textId", result.TextID).Msg("sms sent")
	return nil
}
