package catalog

import "errors"

var (
	ErrNotFound     = errors.New("catalog: product not found")
	ErrInvalidInput = errors.New("catalog: invalid input")
)
