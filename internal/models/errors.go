package models

import "errors"

var (
	ErrInvalidTransition = errors.New("status transition not allowed")
	ErrQueueNotActive    = errors.New("queue is not accepting patients")
	ErrAlreadyInQueue    = errors.New("patient is already waiting in this queue")
	ErrEntryNotFound     = errors.New("patient not found in queue")
	ErrDoctorBusy        = errors.New("another patient is already in consultation")
)
