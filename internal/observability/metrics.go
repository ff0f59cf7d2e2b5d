package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ImagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegroups",
		Name:      "images_processed_total",
		Help:      "Total number of processing runs by terminal status",
	}, []string{"status"})

	FacesDetected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facegroups",
		Name:      "faces_detected_total",
		Help:      "Total number of faces detected",
	})

	GroupsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facegroups",
		Name:      "groups_created_total",
		Help:      "Total number of person groups created",
	})

	ProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "facegroups",
		Name:      "processing_duration_seconds",
		Help:      "Duration of one full image processing run",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	DetectorDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facegroups",
		Name:      "detector_duration_seconds",
		Help:      "Duration of detector inference stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facegroups",
		Name:      "queue_depth",
		Help:      "Number of pending image tasks in queue",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facegroups",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facegroups",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
