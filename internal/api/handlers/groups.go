package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/facegroups/internal/grouping"
	"github.com/your-org/facegroups/internal/models"
	"github.com/your-org/facegroups/internal/storage"
	"github.com/your-org/facegroups/pkg/dto"
)

type GroupHandler struct {
	db         *storage.PostgresStore
	maintainer *grouping.Maintainer
}

func NewGroupHandler(db *storage.PostgresStore, maintainer *grouping.Maintainer) *GroupHandler {
	return &GroupHandler{db: db, maintainer: maintainer}
}

func (h *GroupHandler) List(c *gin.Context) {
	var q dto.ImageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	groups, err := h.db.ListGroups(c.Request.Context(), q.Limit, q.Offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.GroupResponse, 0, len(groups))
	for i := range groups {
		g := &groups[i]
		count, _ := h.db.GroupMemberCount(c.Request.Context(), g.ID)
		resp = append(resp, groupToResponse(g, count))
	}

	c.JSON(http.StatusOK, dto.GroupListResponse{Groups: resp, Total: len(resp)})
}

func (h *GroupHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return
	}

	g, err := h.db.GetGroup(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if g == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
		return
	}

	count, _ := h.db.GroupMemberCount(c.Request.Context(), id)

	c.JSON(http.StatusOK, groupToResponse(g, count))
}

// Rename sets a human-readable label on a group.
func (h *GroupHandler) Rename(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return
	}

	var req dto.RenameGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.maintainer.RenameGroup(c.Request.Context(), id, req.Name); err != nil {
		if errors.Is(err, grouping.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "renamed", "group_id": id})
}

// Merge moves all faces of the source group into the addressed group and
// removes the source. Merging a group into itself is a no-op.
func (h *GroupHandler) Merge(c *gin.Context) {
	targetID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return
	}

	var req dto.MergeGroupsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.maintainer.MergeGroups(c.Request.Context(), req.SourceID, targetID); err != nil {
		if errors.Is(err, grouping.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "target group not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "merged", "group_id": targetID})
}

// Delete removes a group. Its faces stay in place as ungrouped faces.
func (h *GroupHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return
	}

	if err := h.maintainer.DeleteGroup(c.Request.Context(), id); err != nil {
		if errors.Is(err, grouping.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// Faces lists the member faces of a group.
func (h *GroupHandler) Faces(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return
	}

	g, err := h.db.GetGroup(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if g == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
		return
	}

	faces, err := h.db.ListGroupFaces(c.Request.Context(), id)
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

// Images lists the distinct images a group's faces come from.
func (h *GroupHandler) Images(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return
	}

	g, err := h.db.GetGroup(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if g == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
		return
	}

	images, err := h.db.ListGroupImages(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.ImageResponse, 0, len(images))
	for i := range images {
		img := &images[i]
		faceCount, _ := h.db.CountImageFaces(c.Request.Context(), img.ID)
		resp = append(resp, imageToResponse(img, faceCount))
	}

	c.JSON(http.StatusOK, dto.ImageListResponse{Images: resp, Total: len(resp)})
}

func groupToResponse(g *models.PersonGroup, faceCount int) dto.GroupResponse {
	return dto.GroupResponse{
		ID:                   g.ID,
		Name:                 g.Name,
		RepresentativeFaceID: g.RepresentativeFaceID,
		FaceCount:            faceCount,
		CreatedAt:            g.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:            g.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}
