package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type PredictRequest struct {
	Symptoms []string `json:"symptoms" binding:"required,min=1,dive,required"`
}

func (h *Handler) predictionEnabled(c *gin.Context) bool {
	if h.Predictor == nil || !h.Predictor.Enabled() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Disease prediction is not configured"})
		return false
	}
	return true
}

// PredictionSymptoms lists the symptoms the prediction model accepts.
func (h *Handler) PredictionSymptoms(c *gin.Context) {
	if !h.predictionEnabled(c) {
		return
	}
	symptoms, err := h.Predictor.Symptoms(c.Request.Context())
	if err != nil {
		h.respondUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symptoms": symptoms})
}

func (h *Handler) PredictDisease(c *gin.Context) {
	if !h.predictionEnabled(c) {
		return
	}
	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "At least one symptom is required")
		return
	}

	prediction, err := h.Predictor.Predict(c.Request.Context(), req.Symptoms)
	if err != nil {
		h.respondUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, prediction)
}
