package project

import "errors"

var (
	// ErrInvalidProject wraps every structural problem found by Validate.
	ErrInvalidProject = errors.New("project: invalid")
)
