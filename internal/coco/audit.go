package coco

import "fmt"

const lowDensityThreshold = 1.0

var reportNotes = []string{"COCO validated", "Auto-detected objects supported"}

// Audit computes summary statistics for a document that has already passed
// schema validation. It does not re-check types.
func Audit(doc *Document) *Report {
	idToName := make(map[string]string, len(doc.Categories))
	for _, c := range doc.Categories {
		idToName[c.Id.String()] = c.Name
	}

	labels := make(map[string]LabelCount)
	annotated := make(map[string]struct{})
	for _, a := range doc.Annotations {
		cid := a.CategoryId.String()
		name, ok := idToName[cid]
		if !ok {
			name = unknownCategoryName(cid)
		}

		entry, seen := labels[name]
		if !seen {
			entry.CategoryId = cid
		}
		entry.Count++
		labels[name] = entry

		annotated[a.ImageId.String()] = struct{}{}
	}

	imageIds := make(map[string]struct{}, len(doc.Images))
	for _, img := range doc.Images {
		imageIds[img.Id.String()] = struct{}{}
	}

	// Annotations pointing at images that are not in the document are left
	// out of both coverage counts.
	with, without := 0, 0
	for id := range imageIds {
		if _, ok := annotated[id]; ok {
			with++
		} else {
			without++
		}
	}

	numImages, numAnnotations := len(doc.Images), len(doc.Annotations)

	warnings := []string{}
	if without > 0 {
		warnings = append(warnings, fmt.Sprintf("%d images have no annotations", without))
	}
	if numImages > 0 && averageDensity(numImages, numAnnotations) < lowDensityThreshold {
		warnings = append(warnings, "Very low annotation density")
	}

	return &Report{
		Status: StatusSuccess,
		Summary: Summary{
			NumImages:                numImages,
			NumAnnotations:           numAnnotations,
			NumCategories:            len(doc.Categories),
			ImagesWithAnnotations:    with,
			ImagesWithoutAnnotations: without,
			EstimatedQualityScore:    QualityScore(numImages, numAnnotations),
		},
		LabelDistribution: labels,
		Warnings:          warnings,
		Notes:             append([]string(nil), reportNotes...),
	}
}

// QualityScore maps the average number of annotations per image onto a
// fixed set of tiers. The result is non-decreasing in the average and always
// within [0, 95].
func QualityScore(numImages, numAnnotations int) int {
	if numImages <= 0 {
		return 0
	}

	avg := averageDensity(numImages, numAnnotations)
	switch {
	case avg >= 10:
		return 95
	case avg >= 5:
		return 85
	case avg >= 2:
		return 70
	case avg > 0:
		return 50
	default:
		return 0
	}
}

func averageDensity(numImages, numAnnotations int) float64 {
	return float64(numAnnotations) / float64(numImages)
}

func unknownCategoryName(id string) string {
	return "class_" + id
}
