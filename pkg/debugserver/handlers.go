package debugserver

import (
	"errors"
	"net/http"

	"client-telemetry/pkg/telemetry"

	"github.com/gin-gonic/gin"
)

type forceDesyncRequest struct {
	DurationMs int64 `json:"durationMs" binding:"gte=0"`
}

type thresholdRequest struct {
	ThresholdMs int64 `json:"thresholdMs" binding:"required,gt=0"`
}

type captureRequest struct {
	Label string `json:"label" binding:"max=64"`
}

func GetTelemetryHandler(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, svc.Snapshot())
	}
}

func GetDiagnosticsHandler(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, svc.Snapshot().Diagnostics)
	}
}

func GetLivenessHandler(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": svc.Liveness(),
			"state":  svc.LivenessState(),
		})
	}
}

// ForceDesyncHandler accepts an optional body; a missing or zero duration
// uses the server's default window.
func ForceDesyncHandler(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req forceDesyncRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}
		svc.ForceDesync(req.DurationMs)
		c.JSON(http.StatusOK, svc.Liveness())
	}
}

func ClearForcedDesyncHandler(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		svc.ClearForcedDesync()
		c.JSON(http.StatusOK, svc.Liveness())
	}
}

func SetThresholdHandler(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req thresholdRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		svc.SetThreshold(req.ThresholdMs)
		c.JSON(http.StatusOK, gin.H{
			"thresholdMs": svc.LivenessState().ThresholdMs,
			"status":      svc.Liveness(),
		})
	}
}

func GetBaselinesHandler(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, svc.Baselines())
	}
}

func CaptureBaselineHandler(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req captureRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusCreated, svc.CaptureBaseline(req.Label))
	}
}

func GetRegressionHandler(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := svc.Evaluate(c.Query("label"))
		if errors.Is(err, telemetry.ErrBaselineNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}
