package domain

import "errors"

var (
	ErrInvalidTransition         = errors.New("invalid status transition")
	ErrResolutionAlreadyRecorded = errors.New("resolution fields already recorded")
	ErrGridMissing               = errors.New("investigation grid missing")
)
