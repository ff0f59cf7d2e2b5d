package vision

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/your-org/facegroups/internal/config"
	"github.com/your-org/facegroups/internal/models"
	"github.com/your-org/facegroups/internal/observability"
)

// Pipeline is the face detector the grouping engine consumes: one call
// turns image bytes into detections with bounding box, confidence and a
// normalized identity embedding.
type Pipeline struct {
	detector *detector
	embedder *embedder
	maxSize  int
}

// NewPipeline loads the ONNX detection and embedding models.
func NewPipeline(cfg config.VisionConfig) (*Pipeline, error) {
	detPath := filepath.Join(cfg.ModelsDir, "det_10g.onnx")
	embPath := filepath.Join(cfg.ModelsDir, "w600k_r50.onnx")

	slog.Info("loading detection model", "path", detPath)
	det, err := newDetector(detPath, float32(cfg.DetectionThreshold))
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	slog.Info("loading embedding model", "path", embPath)
	emb, err := newEmbedder(embPath)
	if err != nil {
		det.close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}

	return &Pipeline{
		detector: det,
		embedder: emb,
		maxSize:  cfg.MaxImageSize,
	}, nil
}

// EmbeddingDim returns the embedding vector dimension of the loaded model.
func (p *Pipeline) EmbeddingDim() int {
	return p.embedder.embDim
}

// DetectFaces finds every face in the image and extracts its embedding.
// Bounding boxes are reported in source-image pixel space regardless of any
// internal downscaling. An empty result is a valid success.
func (p *Pipeline) DetectFaces(imageData []byte) ([]models.Detection, error) {
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	origW := bounds.Dx()
	origH := bounds.Dy()

	// Large photos are downscaled before inference; detections are scaled
	// back to source coordinates below.
	workW, workH := origW, origH
	if p.maxSize > 0 && (origW > p.maxSize || origH > p.maxSize) {
		workW, workH = fitWithin(origW, origH, p.maxSize)
		img = resizeImage(img, workW, workH)
	}

	start := time.Now()
	detInput := preprocessForDetection(img, p.detector.inputW, p.detector.inputH)
	boxes, err := p.detector.detect(detInput, workW, workH)
	observability.DetectorDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}

	backW := float32(origW) / float32(workW)
	backH := float32(origH) / float32(workH)

	detections := make([]models.Detection, 0, len(boxes))
	for _, box := range boxes {
		crop := cropFace(img, box.bbox)
		if crop == nil {
			continue
		}

		start = time.Now()
		embInput := preprocessForEmbedding(crop, p.embedder.inputW, p.embedder.inputH)
		embedding, err := p.embedder.extract(embInput)
		observability.DetectorDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())
		if err != nil {
			return nil, fmt.Errorf("embed face: %w", err)
		}

		detections = append(detections, models.Detection{
			BBox:       toBoundingBox(box.bbox, backW, backH),
			Confidence: box.confidence,
			Embedding:  embedding,
		})
	}

	return detections, nil
}

// Close releases the ONNX sessions.
func (p *Pipeline) Close() {
	if p.detector != nil {
		p.detector.close()
	}
	if p.embedder != nil {
		p.embedder.close()
	}
}

// toBoundingBox converts x1,y1,x2,y2 working coordinates to an x,y,w,h box
// in source-image pixels.
func toBoundingBox(bbox [4]float32, scaleW, scaleH float32) models.BoundingBox {
	x1 := bbox[0] * scaleW
	y1 := bbox[1] * scaleH
	x2 := bbox[2] * scaleW
	y2 := bbox[3] * scaleH
	return models.BoundingBox{
		X:      int(x1),
		Y:      int(y1),
		Width:  int(x2 - x1),
		Height: int(y2 - y1),
	}
}

// fitWithin shrinks w x h to fit inside max on the longer side, keeping
// the aspect ratio. Never reports a zero dimension.
func fitWithin(w, h, max int) (int, int) {
	if w >= h {
		nh := h * max / w
		if nh < 1 {
			nh = 1
		}
		return max, nh
	}
	nw := w * max / h
	if nw < 1 {
		nw = 1
	}
	return nw, max
}
