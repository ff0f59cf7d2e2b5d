package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/facegroups/internal/models"
	"github.com/your-org/facegroups/internal/storage"
	"github.com/your-org/facegroups/pkg/dto"
)

type FaceHandler struct {
	db *storage.PostgresStore
}

func NewFaceHandler(db *storage.PostgresStore) *FaceHandler {
	return &FaceHandler{db: db}
}

func (h *FaceHandler) List(c *gin.Context) {
	var q dto.FaceQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var (
		faces []models.Face
		err   error
	)

	switch {
	case q.ImageID != "":
		var imageID uuid.UUID
		imageID, err = uuid.Parse(q.ImageID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid image_id"})
			return
		}
		faces, err = h.db.ListImageFaces(c.Request.Context(), imageID)
	case q.GroupID != "":
		var groupID uuid.UUID
		groupID, err = uuid.Parse(q.GroupID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group_id"})
			return
		}
		faces, err = h.db.ListGroupFaces(c.Request.Context(), groupID)
	default:
		faces, err = h.db.ListFaces(c.Request.Context(), q.Limit, q.Offset)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.FaceResponse, 0, len(faces))
	for i := range faces {
		resp = append(resp, faceToResponse(&faces[i]))
	}

	c.JSON(http.StatusOK, dto.FaceListResponse{Faces: resp, Total: len(resp)})
}

func (h *FaceHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid face id"})
		return
	}

	f, err := h.db.GetFace(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if f == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "face not found"})
		return
	}

	c.JSON(http.StatusOK, faceToResponse(f))
}
