package handlers

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/facegroups/internal/models"
	"github.com/your-org/facegroups/internal/queue"
	"github.com/your-org/facegroups/internal/storage"
	"github.com/your-org/facegroups/pkg/dto"
)

type ImageHandler struct {
	db       *storage.PostgresStore
	minio    *storage.MinIOStore
	producer *queue.Producer
	// AutoProcess queues a detection run right after upload.
	AutoProcess bool
}

func NewImageHandler(db *storage.PostgresStore, minio *storage.MinIOStore, producer *queue.Producer) *ImageHandler {
	return &ImageHandler{db: db, minio: minio, producer: producer}
}

// Upload accepts a multipart image upload and stores it for processing.
func (h *ImageHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file required"})
		return
	}
	defer file.Close()

	imageData, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read image failed"})
		return
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(imageData))
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "unsupported image format"})
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "image/" + format
	}

	img := &models.Image{
		ID:       uuid.New(),
		Filename: header.Filename,
		MimeType: mimeType,
		FileSize: int64(len(imageData)),
		Width:    cfg.Width,
		Height:   cfg.Height,
		Status:   models.StatusPending,
	}
	img.StorageKey = "photos/" + img.ID.String() + "_" + header.Filename

	if err := h.minio.PutObject(c.Request.Context(), img.StorageKey, imageData, mimeType); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store image failed"})
		return
	}

	if err := h.db.CreateImage(c.Request.Context(), img); err != nil {
		_ = h.minio.DeleteObject(c.Request.Context(), img.StorageKey)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if h.AutoProcess {
		if err := h.producer.PublishTask(c.Request.Context(), models.ProcessTask{ImageID: img.ID}); err != nil {
			// The image is stored; processing can be requested again later.
			c.JSON(http.StatusCreated, imageToResponse(img, 0))
			return
		}
	}

	c.JSON(http.StatusCreated, imageToResponse(img, 0))
}

func (h *ImageHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid image id"})
		return
	}

	img, err := h.db.GetImage(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if img == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
		return
	}

	faceCount, _ := h.db.CountImageFaces(c.Request.Context(), id)

	c.JSON(http.StatusOK, imageToResponse(img, faceCount))
}

func (h *ImageHandler) List(c *gin.Context) {
	var q dto.ImageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	images, err := h.db.ListImages(c.Request.Context(), q.Limit, q.Offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.ImageResponse, 0, len(images))
	for i := range images {
		img := &images[i]
		if q.Status != "" && string(img.Status) != q.Status {
			continue
		}
		faceCount, _ := h.db.CountImageFaces(c.Request.Context(), img.ID)
		resp = append(resp, imageToResponse(img, faceCount))
	}

	c.JSON(http.StatusOK, dto.ImageListResponse{Images: resp, Total: len(resp)})
}

// File proxies the original image bytes from MinIO.
func (h *ImageHandler) File(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid image id"})
		return
	}

	img, err := h.db.GetImage(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if img == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
		return
	}

	data, err := h.minio.GetObject(c.Request.Context(), img.StorageKey)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "image data not found"})
		return
	}

	c.Data(http.StatusOK, img.MimeType, data)
}

// Faces lists the faces detected on one image.
func (h *ImageHandler) Faces(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid image id"})
		return
	}

	img, err := h.db.GetImage(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if img == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
		return
	}

	faces, err := h.db.ListImageFaces(c.Request.Context(), id)
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

// Process queues a detection and grouping run for the image.
func (h *ImageHandler) Process(c *gin.Context) {
	h.queueRun(c, false)
}

// Reprocess queues a fresh run that discards the image's previous faces.
func (h *ImageHandler) Reprocess(c *gin.Context) {
	h.queueRun(c, true)
}

func (h *ImageHandler) queueRun(c *gin.Context, redo bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid image id"})
		return
	}

	img, err := h.db.GetImage(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if img == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
		return
	}

	if img.Status == models.StatusProcessing {
		c.JSON(http.StatusConflict, gin.H{"error": "image is already being processed"})
		return
	}

	task := models.ProcessTask{ImageID: id, Redo: redo}
	if err := h.producer.PublishTask(c.Request.Context(), task); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue processing"})
		return
	}

	c.JSON(http.StatusAccepted, dto.ProcessAccepted{ImageID: id, Status: "queued"})
}

func imageToResponse(img *models.Image, faceCount int) dto.ImageResponse {
	resp := dto.ImageResponse{
		ID:         img.ID,
		Filename:   img.Filename,
		MimeType:   img.MimeType,
		FileSize:   img.FileSize,
		Width:      img.Width,
		Height:     img.Height,
		Status:     string(img.Status),
		FaceCount:  faceCount,
		UploadedAt: img.UploadedAt.Format("2006-01-02T15:04:05Z"),
	}
	if img.ProcessedAt != nil {
		resp.ProcessedAt = img.ProcessedAt.Format("2006-01-02T15:04:05Z")
	}
	return resp
}

func faceToResponse(f *models.Face) dto.FaceResponse {
	return dto.FaceResponse{
		ID:      f.ID,
		ImageID: f.ImageID,
		BoundingBox: dto.BoundingBox{
			X:      f.BBox.X,
			Y:      f.BBox.Y,
			Width:  f.BBox.Width,
			Height: f.BBox.Height,
		},
		Confidence:    f.Confidence,
		PersonGroupID: f.PersonGroupID,
		DetectedAt:    f.DetectedAt.Format("2006-01-02T15:04:05Z"),
	}
}
