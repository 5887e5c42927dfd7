package coco

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// ID is a COCO object id. The schema only admits integer values, but JSON
// encoders are free to write them as 3.0, so decoding accepts any number
// without a fractional part.
type ID int64

func (id *ID) UnmarshalJSON(data []byte) error {
	v, err := decodeInteger(data)
	if err != nil {
		return fmt.Errorf("invalid id %s: %w", data, err)
	}
	*id = ID(v)
	return nil
}

// Int is a non-id integer field such as a width or the iscrowd flag. It
// decodes like ID.
type Int int

func (i *Int) UnmarshalJSON(data []byte) error {
	v, err := decodeInteger(data)
	if err != nil {
		return fmt.Errorf("invalid integer %s: %w", data, err)
	}
	if v < math.MinInt || v > math.MaxInt {
		return fmt.Errorf("invalid integer %s: out of range", data)
	}
	*i = Int(v)
	return nil
}

// Float64 bounds of int64. 2^63 is exact in float64, so the upper bound is
// exclusive.
const (
	minInt64Float = -9223372036854775808.0
	maxInt64Float = 9223372036854775808.0
)

func decodeInteger(data []byte) (int64, error) {
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return 0, err
	}
	if v, err := n.Int64(); err == nil {
		return v, nil
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) {
		return 0, errors.New("not an integer")
	}
	if f < minInt64Float || f >= maxInt64Float {
		return 0, errors.New("out of range")
	}
	return int64(f), nil
}

func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

type Document struct {
	Images      []Image      `json:"images"`
	Annotations []Annotation `json:"annotations"`
	Categories  []Category   `json:"categories"`
}

type Image struct {
	Id       ID     `json:"id"`
	FileName string `json:"file_name"`
	Width    Int    `json:"width"`
	Height   Int    `json:"height"`
}

// BBox is [x, y, width, height] in pixels with a top-left origin.
type BBox [4]float64

func (b BBox) Area() float64 {
	return b[2] * b[3]
}

type Annotation struct {
	Id           ID      `json:"id"`
	ImageId      ID      `json:"image_id"`
	CategoryId   ID      `json:"category_id"`
	BBox         BBox    `json:"bbox"`
	Area         float64 `json:"area"`
	IsCrowd      Int     `json:"iscrowd"`
	Segmentation any     `json:"segmentation"`
}

type Category struct {
	Id            ID     `json:"id"`
	Name          string `json:"name"`
	Supercategory string `json:"supercategory,omitempty"`
}

// DetectedObject is a single box reported by a detector for one image.
type DetectedObject struct {
	CategoryId   ID      `json:"category_id"`
	CategoryName string  `json:"category_name"`
	BBox         BBox    `json:"bbox"`
	Score        float64 `json:"score"`
}

// Detection holds everything a detector found in one image. It is an
// intermediate form and is never persisted as is.
type Detection struct {
	ImagePath string           `json:"image_path"`
	Width     int              `json:"width"`
	Height    int              `json:"height"`
	Objects   []DetectedObject `json:"objects"`
}
