package store

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyBooked     = errors.New("already booked")
	ErrAlreadyAssociated = errors.New("already associated")
	ErrGroupFull         = errors.New("group is full")
)
