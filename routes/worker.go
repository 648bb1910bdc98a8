package routes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"grant-platform-backend/models"
	"grant-platform-backend/services"
	"grant-platform-backend/utils"
)

// HandleWorkerExtract claims a batch of pending queue entries and runs
// text extraction on them.
func HandleWorkerExtract(runner *services.WorkerRunner) gin.HandlerFunc {
	return func(c *gin.Context) {
		processed, err := runner.ProcessExtractionBatch(c.Request.Context())
		if err != nil {
			utils.RespondWithInternalError(c, "Extraction batch failed", gin.H{
				"error": err.Error(),
			})
			return
		}
		if processed == 0 {
			c.JSON(http.StatusOK, gin.H{"message": "No documents ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"processed": processed})
	}
}

// HandleWorkerVectorize claims a batch of extracted queue entries and runs
// vectorization on them.
func HandleWorkerVectorize(runner *services.WorkerRunner) gin.HandlerFunc {
	return func(c *gin.Context) {
		processed, err := runner.ProcessVectorizationBatch(c.Request.Context())
		if err != nil {
			utils.RespondWithInternalError(c, "Vectorization batch failed", gin.H{
				"error": err.Error(),
			})
			return
		}
		if processed == 0 {
			c.JSON(http.StatusOK, gin.H{"message": "No documents ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"processed": processed})
	}
}

type workerDocumentRequest struct {
	ID            string               `json:"id" binding:"required"`
	DocumentID    string               `json:"document_id"`
	DocumentClass models.DocumentClass `json:"document_type"`
	Status        string               `json:"status"`
	Attempts      int                  `json:"attempts"`
}

// HandleWorkerDocument runs one queue entry through the full pipeline. The
// request carries a snapshot of the entry; only the id is authoritative,
// the stored entry decides whether anything happens.
func HandleWorkerDocument(runner *services.WorkerRunner) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req workerDocumentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid queue entry payload", gin.H{
				"error": err.Error(),
			})
			return
		}

		outcome, err := runner.ProcessEntry(c.Request.Context(), req.ID)
		if err != nil {
			if errors.Is(err, services.ErrEntryNotClaimable) {
				c.JSON(http.StatusOK, gin.H{
					"document_id": req.DocumentID,
					"success":     true,
					"message":     "Document is not pending",
					"status":      outcome.Status,
				})
				return
			}
			utils.RespondWithInternalError(c, "Failed to process queue entry", gin.H{
				"error": err.Error(),
			})
			return
		}

		if outcome.Err != nil {
			c.JSON(http.StatusOK, gin.H{
				"document_id": req.DocumentID,
				"success":     false,
				"status":      outcome.Status,
				"error":       outcome.Err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"document_id": req.DocumentID,
			"success":     true,
			"status":      outcome.Status,
		})
	}
}
