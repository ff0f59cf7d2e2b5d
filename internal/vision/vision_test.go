package vision

import (
	"image"
	"image/color"
	"math"
	"testing"
)

func TestIOU(t *testing.T) {
	tests := []struct {
		name string
		a, b [4]float32
		want float32
	}{
		{"identical", [4]float32{0, 0, 10, 10}, [4]float32{0, 0, 10, 10}, 1},
		{"disjoint", [4]float32{0, 0, 10, 10}, [4]float32{20, 20, 30, 30}, 0},
		{"half overlap", [4]float32{0, 0, 10, 10}, [4]float32{5, 0, 15, 10}, 50.0 / 150.0},
		{"contained", [4]float32{0, 0, 10, 10}, [4]float32{2, 2, 8, 8}, 36.0 / 100.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := iou(tt.a, tt.b)
			if math.Abs(float64(got-tt.want)) > 1e-6 {
				t.Errorf("iou = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestNMSSuppressesOverlaps(t *testing.T) {
	boxes := []faceBox{
		{bbox: [4]float32{0, 0, 10, 10}, confidence: 0.9},
		{bbox: [4]float32{1, 1, 11, 11}, confidence: 0.8}, // overlaps first
		{bbox: [4]float32{50, 50, 60, 60}, confidence: 0.7},
	}

	kept := nms(boxes, 0.4)
	if len(kept) != 2 {
		t.Fatalf("kept %d boxes, want 2", len(kept))
	}
	// The highest-confidence box of the overlapping pair survives.
	if kept[0].confidence != 0.9 {
		t.Errorf("first kept confidence = %f, want 0.9", kept[0].confidence)
	}
}

func TestNMSEmpty(t *testing.T) {
	if kept := nms(nil, 0.4); len(kept) != 0 {
		t.Errorf("kept %d boxes from empty input", len(kept))
	}
}

func TestClampF(t *testing.T) {
	if got := clampF(-5, 0, 10); got != 0 {
		t.Errorf("clampF(-5) = %f, want 0", got)
	}
	if got := clampF(15, 0, 10); got != 10 {
		t.Errorf("clampF(15) = %f, want 10", got)
	}
	if got := clampF(5, 0, 10); got != 5 {
		t.Errorf("clampF(5) = %f, want 5", got)
	}
}

func TestFitWithin(t *testing.T) {
	tests := []struct {
		w, h, max    int
		wantW, wantH int
	}{
		{4000, 2000, 1920, 1920, 960},
		{2000, 4000, 1920, 960, 1920},
		{3000, 3000, 1920, 1920, 1920},
	}

	for _, tt := range tests {
		gotW, gotH := fitWithin(tt.w, tt.h, tt.max)
		if gotW != tt.wantW || gotH != tt.wantH {
			t.Errorf("fitWithin(%d, %d, %d) = %dx%d, want %dx%d",
				tt.w, tt.h, tt.max, gotW, gotH, tt.wantW, tt.wantH)
		}
	}
}

func TestToBoundingBox(t *testing.T) {
	// A detection at 100,50..200,150 in a half-scale working image maps back
	// to 200,100..400,300 in source pixels.
	bb := toBoundingBox([4]float32{100, 50, 200, 150}, 2, 2)
	if bb.X != 200 || bb.Y != 100 || bb.Width != 200 || bb.Height != 200 {
		t.Errorf("bbox = %+v, want {200 100 200 200}", bb)
	}
}

func TestImageToFloat32CHW(t *testing.T) {
	// 2x2 image: white, black, mid-gray, mid-gray.
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{255, 255, 255, 255})
	img.Set(1, 0, color.RGBA{0, 0, 0, 255})
	img.Set(0, 1, color.RGBA{128, 128, 128, 255})
	img.Set(1, 1, color.RGBA{128, 128, 128, 255})

	data := imageToFloat32CHW(img, 2, 2, [3]float32{127.5, 127.5, 127.5}, [3]float32{127.5, 127.5, 127.5})

	if len(data) != 3*2*2 {
		t.Fatalf("len = %d, want 12", len(data))
	}
	// White pixel, R channel: (255-127.5)/127.5 = 1.
	if math.Abs(float64(data[0])-1) > 1e-6 {
		t.Errorf("white R = %f, want 1", data[0])
	}
	// Black pixel, R channel: (0-127.5)/127.5 = -1.
	if math.Abs(float64(data[1])+1) > 1e-6 {
		t.Errorf("black R = %f, want -1", data[1])
	}
}

func TestResizeImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	resized := resizeImage(img, 2, 2)
	b := resized.Bounds()
	if b.Dx() != 2 || b.Dy() != 2 {
		t.Errorf("resized = %dx%d, want 2x2", b.Dx(), b.Dy())
	}
}

func TestCropFace(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))

	crop := cropFace(img, [4]float32{10, 10, 50, 50})
	if crop == nil {
		t.Fatal("crop = nil for valid box")
	}
	b := crop.Bounds()
	// 40x40 box with 10% padding on each side.
	if b.Dx() != 48 || b.Dy() != 48 {
		t.Errorf("crop = %dx%d, want 48x48", b.Dx(), b.Dy())
	}

	if cropFace(img, [4]float32{50, 50, 50, 50}) != nil {
		t.Error("zero-area box should yield nil")
	}
	if cropFace(img, [4]float32{200, 200, 300, 300}) != nil {
		t.Error("out-of-bounds box should yield nil")
	}
}
