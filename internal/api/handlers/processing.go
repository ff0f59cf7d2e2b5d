package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facegroups/internal/models"
	"github.com/your-org/facegroups/internal/queue"
	"github.com/your-org/facegroups/internal/storage"
	"github.com/your-org/facegroups/pkg/dto"
)

type ProcessingHandler struct {
	db       *storage.PostgresStore
	producer *queue.Producer
}

func NewProcessingHandler(db *storage.PostgresStore, producer *queue.Producer) *ProcessingHandler {
	return &ProcessingHandler{db: db, producer: producer}
}

// Status reports image counts per processing state and the task queue depth.
func (h *ProcessingHandler) Status(c *gin.Context) {
	counts, err := h.db.ProcessingCounts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	depth, err := h.producer.QueueDepth(c.Request.Context())
	if err != nil {
		// The queue being unreachable should not hide the DB counts.
		depth = 0
	}

	c.JSON(http.StatusOK, dto.ProcessingStatusResponse{
		Pending:    counts[models.StatusPending],
		Processing: counts[models.StatusProcessing],
		Completed:  counts[models.StatusCompleted],
		Failed:     counts[models.StatusFailed],
		QueueDepth: int(depth),
	})
}
