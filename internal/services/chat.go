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
	"time"

	"github.com/rs/zerolog"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/models/"

var (
	ErrChatDisabled  = errors.New("chat assistant is not configured")
	ErrEmptyReply    = errors.New("assistant returned an empty response")
	ErrInvalidReport = errors.New("report image must be base64 or a data URL")
)

const assistantPrompt = `You are the CareBridge assistant for a hospital appointment service. Follow these rules:
1. Help patients understand how to book, cancel and track appointments and how the live queue works.
2. Give general health information only. Never diagnose and always recommend seeing a doctor for medical concerns.
3. For emergencies tell the user to call local emergency services immediately.
4. Answer in the language the user writes in.`

const reportPrompt = `Summarize this medical report for the patient in plain language. List the key findings and any values outside the normal range, and suggest questions to ask their doctor. Do not give a diagnosis.`

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// ChatService proxies chat and report analysis to the Gemini generateContent API.
type ChatService struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

func NewChatService(apiKey, model string, log zerolog.Logger) *ChatService {
	return &ChatService{
		apiKey:  apiKey,
		model:   model,
		baseURL: geminiBaseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
		log:     log.With().Str("component", "chat").Logger(),
	}
}

func (s *ChatService) Enabled() bool { return s.apiKey != "" }

func (s *ChatService) Reply(ctx context.Context, message string) (string, error) {
	return s.generate(ctx, []geminiContent{
		{Role: "user", Parts: []geminiPart{{Text: assistantPrompt}}},
		{Role: "model", Parts: []geminiPart{{Text: "Understood. I will follow these rules."}}},
		{Role: "user", Parts: []geminiPart{{Text: message}}},
	})
}

// AnalyzeReport sends an image of a medical report with an optional prompt.
func (s *ChatService) AnalyzeReport(ctx context.Context, image, prompt string) (string, error) {
	mime, data, err := splitImage(image)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(prompt) == "" {
		prompt = reportPrompt
	}
	return s.generate(ctx, []geminiContent{{
		Role: "user",
		Parts: []geminiPart{
			{Text: prompt},
			{InlineData: &geminiInlineData{MimeType: mime, Data: data}},
		},
	}})
}

// splitImage accepts "data:image/png;base64,...." or bare base64 (assumed JPEG).
func splitImage(image string) (mime, data string, err error) {
	image = strings.TrimSpace(image)
	if image == "" {
		return "", "", ErrInvalidReport
	}
	if !strings.HasPrefix(image, "data:") {
		return "image/jpeg", image, nil
	}
	header, payload, ok := strings.Cut(strings.TrimPrefix(image, "data:"), ",")
	if !ok || !strings.HasSuffix(header, ";base64") || payload == "" {
		return "", "", ErrInvalidReport
	}
	return strings.TrimSuffix(header, ";base64"), payload, nil
}

func (s *ChatService) generate(ctx context.Context, contents []geminiContent) (string, error) {
	if !s.Enabled() {
		return "", ErrChatDisabled
	}
	body, err := json.Marshal(geminiRequest{Contents: contents})
	if err != nil {
		return "", err
	}

	url := s.baseURL + s.model + ":generateContent"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call gemini: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read gemini response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		s.log.Error().Int("status", resp.StatusCode).Str("body", string(raw)).Msg("gemini error response")
		return "", fmt.Errorf("gemini returned status %d", resp.StatusCode)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse gemini response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyReply
	}
	var out strings.Builder
	for _, p := range parsed.Candidates[0].Content.Parts {
		out.WriteString(p.Text)
	}
	if out.Len() == 0 {
		return "", ErrEmptyReply
	}
	return out.String(), nil
}
