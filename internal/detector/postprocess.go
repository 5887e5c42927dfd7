package detector

import (
	"image"
	"sort"

	"annotate-backend/internal/coco"

	"github.com/chewxy/math32"
	"github.com/nfnt/resize"
)

const letterboxPad = 114.0 / 255.0

// letterbox records how an image was scaled and padded to the model input so
// that boxes can be mapped back onto the original pixels.
type letterbox struct {
	scale  float32
	padX   float32
	padY   float32
	width  int
	height int
}

func newLetterbox(width, height, inputWidth, inputHeight int) letterbox {
	scale := math32.Min(float32(inputWidth)/float32(width), float32(inputHeight)/float32(height))
	scaledW := int(math32.Round(float32(width) * scale))
	scaledH := int(math32.Round(float32(height) * scale))
	return letterbox{
		scale:  scale,
		padX:   float32((inputWidth - scaledW) / 2),
		padY:   float32((inputHeight - scaledH) / 2),
		width:  width,
		height: height,
	}
}

// preprocess letterboxes img into a CHW float32 tensor in [0, 1].
func preprocess(img image.Image, inputWidth, inputHeight int) ([]float32, letterbox) {
	bounds := img.Bounds()
	lb := newLetterbox(bounds.Dx(), bounds.Dy(), inputWidth, inputHeight)

	scaledW := max(1, int(math32.Round(float32(bounds.Dx())*lb.scale)))
	scaledH := max(1, int(math32.Round(float32(bounds.Dy())*lb.scale)))
	resized := resize.Resize(uint(scaledW), uint(scaledH), img, resize.Bilinear)

	plane := inputWidth * inputHeight
	data := make([]float32, 3*plane)
	for i := range data {
		data[i] = letterboxPad
	}

	offX, offY := int(lb.padX), int(lb.padY)
	rb := resized.Bounds()
	for y := 0; y < scaledH && offY+y < inputHeight; y++ {
		for x := 0; x < scaledW && offX+x < inputWidth; x++ {
			r, g, b, _ := resized.At(rb.Min.X+x, rb.Min.Y+y).RGBA()
			idx := (offY+y)*inputWidth + offX + x
			data[idx] = float32(r>>8) / 255.0
			data[idx+plane] = float32(g>>8) / 255.0
			data[idx+2*plane] = float32(b>>8) / 255.0
		}
	}

	return data, lb
}

type candidate struct {
	class          int
	score          float32
	x1, y1, x2, y2 float32
}

func (c candidate) area() float32 {
	return math32.Max(0, c.x2-c.x1) * math32.Max(0, c.y2-c.y1)
}

func (c candidate) iou(o candidate) float32 {
	w := math32.Min(c.x2, o.x2) - math32.Max(c.x1, o.x1)
	h := math32.Min(c.y2, o.y2) - math32.Max(c.y1, o.y1)
	if w <= 0 || h <= 0 {
		return 0
	}
	inter := w * h
	union := c.area() + o.area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// decodeOutput reads a YOLOv8 head laid out as [4+numClasses][anchors]
// (cx, cy, w, h followed by per class scores) and returns every anchor whose
// best class clears the threshold, in original image coordinates.
func decodeOutput(output []float32, numClasses, anchors int, threshold float32, lb letterbox) []candidate {
	if len(output) < (4+numClasses)*anchors {
		return nil
	}

	var out []candidate
	for i := 0; i < anchors; i++ {
		best, bestScore := -1, float32(0)
		for c := 0; c < numClasses; c++ {
			if s := output[(4+c)*anchors+i]; s > bestScore {
				best, bestScore = c, s
			}
		}
		if best < 0 || bestScore < threshold {
			continue
		}

		cx, cy := output[i], output[anchors+i]
		w, h := output[2*anchors+i], output[3*anchors+i]

		out = append(out, candidate{
			class: best,
			score: bestScore,
			x1:    clamp((cx-w/2-lb.padX)/lb.scale, float32(lb.width)),
			y1:    clamp((cy-h/2-lb.padY)/lb.scale, float32(lb.height)),
			x2:    clamp((cx+w/2-lb.padX)/lb.scale, float32(lb.width)),
			y2:    clamp((cy+h/2-lb.padY)/lb.scale, float32(lb.height)),
		})
	}
	return out
}

func clamp(v, upper float32) float32 {
	return math32.Min(math32.Max(v, 0), upper)
}

// nonMaxSuppression keeps the highest scoring box of every cluster of same
// class boxes overlapping by more than iouThreshold. The result is sorted by
// descending score.
func nonMaxSuppression(boxes []candidate, iouThreshold float32) []candidate {
	sort.SliceStable(boxes, func(i, j int) bool {
		return boxes[i].score > boxes[j].score
	})

	suppressed := make([]bool, len(boxes))
	kept := make([]candidate, 0, len(boxes))
	for i := range boxes {
		if suppressed[i] {
			continue
		}
		kept = append(kept, boxes[i])
		for j := i + 1; j < len(boxes); j++ {
			if suppressed[j] || boxes[j].class != boxes[i].class {
				continue
			}
			if boxes[i].iou(boxes[j]) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}

func toObjects(boxes []candidate, classes []string) []coco.DetectedObject {
	objects := make([]coco.DetectedObject, 0, len(boxes))
	for _, b := range boxes {
		name := ""
		if b.class < len(classes) {
			name = classes[b.class]
		}
		objects = append(objects, coco.DetectedObject{
			CategoryId:   coco.ID(b.class + 1),
			CategoryName: name,
			BBox:         coco.BBox{float64(b.x1), float64(b.y1), float64(b.x2 - b.x1), float64(b.y2 - b.y1)},
			Score:        float64(b.score),
		})
	}
	return objects
}
