package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrPredictionDisabled = errors.New("disease prediction is not configured")
	ErrNoSymptoms         = errors.New("at least one symptom is required")
	// ErrPredictionRejected wraps a 4xx answer from the model server.
	ErrPredictionRejected = errors.New("prediction request rejected")
)

const (
	symptomsCacheTTL   = 5 * time.Minute
	predictionAttempts = 3
)

type Prediction struct {
	Disease     string   `json:"disease"`
	Precautions []string `json:"precautions"`
}

// PredictionService proxies symptom lookups and disease predictions to the
// external model server (GET /symptoms, POST /predict).
type PredictionService struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
	backoff time.Duration
	now     func() time.Time

	mu        sync.Mutex
	symptoms  []string
	fetchedAt time.Time
}

// NewPredictionService returns a disabled service when baseURL is empty.
func NewPredictionService(baseURL string, log zerolog.Logger) *PredictionService {
	return &PredictionService{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log.With().Str("component", "prediction").Logger(),
		backoff: time.Second,
		now:     time.Now,
	}
}

func (s *PredictionService) Enabled() bool { return s.baseURL != "" }

// Symptoms lists the symptom names the model understands. The list is cached
// for five minutes.
func (s *PredictionService) Symptoms(ctx context.Context) ([]string, error) {
	if !s.Enabled() {
		return nil, ErrPredictionDisabled
	}
	s.mu.Lock()
	if s.symptoms != nil && s.now().Sub(s.fetchedAt) < symptomsCacheTTL {
		cached := s.symptoms
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	var out struct {
		Symptoms []string `json:"symptoms"`
	}
	if err := s.call(ctx, http.MethodGet, "/symptoms", nil, &out); err != nil {
		return nil, err
	}
	if out.Symptoms == nil {
		out.Symptoms = []string{}
	}

	s.mu.Lock()
	s.symptoms, s.fetchedAt = out.Symptoms, s.now()
	s.mu.Unlock()
	return out.Symptoms, nil
}

// Predict returns the most likely disease for the given symptoms. Blank and
// repeated symptoms are dropped before the request is sent.
func (s *PredictionService) Predict(ctx context.Context, symptoms []string) (*Prediction, error) {
	if !s.Enabled() {
		return nil, ErrPredictionDisabled
	}
	cleaned := normalizeSymptoms(symptoms)
	if len(cleaned) == 0 {
		return nil, ErrNoSymptoms
	}

	var out Prediction
	body := struct {
		Symptoms []string `json:"symptoms"`
	}{cleaned}
	if err := s.call(ctx, http.MethodPost, "/predict", body, &out); err != nil {
		return nil, err
	}
	if out.Disease == "" {
		return nil, fmt.Errorf("model server returned no disease")
	}
	if out.Precautions == nil {
		out.Precautions = []string{}
	}
	return &out, nil
}

func normalizeSymptoms(symptoms []string) []string {
	seen := make(map[string]bool, len(symptoms))
	out := make([]string, 0, len(symptoms))
	for _, sym := range symptoms {
		sym = strings.TrimSpace(sym)
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	return out
}

type retryableError struct{ err error }

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

// call retries network failures, 429 and 5xx answers with a linear backoff.
func (s *PredictionService) call(ctx context.Context, method, path string, in, out interface{}) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return err
		}
	}

	var err error
	for attempt := 1; attempt <= predictionAttempts; attempt++ {
		err = s.once(ctx, method, path, payload, out)
		var retry retryableError
		if err == nil || !errors.As(err, &retry) {
			return err
		}
		if attempt == predictionAttempts {
			break
		}
		s.log.Warn().Err(err).Int("attempt", attempt).Str("path", path).Msg("model server call failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.backoff * time.Duration(attempt)):
		}
	}
	return err
}

func (s *PredictionService) once(ctx context.Context, method, path string, payload []byte, out interface{}) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build model server request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return retryableError{fmt.Errorf("call model server: %w", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return retryableError{fmt.Errorf("read model server response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		s.log.Error().Int("status", resp.StatusCode).Str("body", string(raw)).Msg("model server error response")
		return retryableError{fmt.Errorf("model server returned status %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		var msg struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(raw, &msg)
		if msg.Error == "" {
			msg.Error = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("%w: %s", ErrPredictionRejected, msg.Error)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("model server returned status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse model server response: %w", err)
	}
	return nil
}
