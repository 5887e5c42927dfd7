package coco

import (
	"path/filepath"
	"strings"
)

const defaultSupercategory = "object"

// Assemble converts per-image detector output into a COCO document. Image
// ids follow the order of detections and annotation ids the order of objects,
// both starting at 1 with no gaps. Input is not validated here; a document
// built from empty input is still well formed.
func Assemble(detections []Detection, categories []Category, imagesRoot string) *Document {
	doc := &Document{
		Images:      make([]Image, 0, len(detections)),
		Annotations: []Annotation{},
		Categories:  make([]Category, 0, len(categories)),
	}

	for _, c := range categories {
		if c.Supercategory == "" {
			c.Supercategory = defaultSupercategory
		}
		doc.Categories = append(doc.Categories, c)
	}

	nextAnnotationId := ID(1)
	for i, det := range detections {
		imageId := ID(i + 1)

		doc.Images = append(doc.Images, Image{
			Id:       imageId,
			FileName: RelativeFileName(imagesRoot, det.ImagePath),
			Width:    Int(det.Width),
			Height:   Int(det.Height),
		})

		for _, obj := range det.Objects {
			doc.Annotations = append(doc.Annotations, Annotation{
				Id:           nextAnnotationId,
				ImageId:      imageId,
				CategoryId:   obj.CategoryId,
				BBox:         obj.BBox,
				Area:         obj.BBox.Area(),
				IsCrowd:      0,
				Segmentation: []any{},
			})
			nextAnnotationId++
		}
	}

	return doc
}

// RelativeFileName expresses path relative to root using forward slashes
// regardless of the host platform. Paths that cannot be made relative to root
// are kept whole.
func RelativeFileName(root, path string) string {
	name := path
	if root != "" {
		if rel, err := filepath.Rel(root, path); err == nil && !escapesRoot(rel) {
			name = rel
		}
	}
	return strings.ReplaceAll(filepath.ToSlash(name), `\`, "/")
}

func escapesRoot(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
