package core

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrDetection    = errors.New("object detection failed")
	ErrInternal     = errors.New("internal error")
)
