package service

import "errors"

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionCompleted = errors.New("session is completed")
	ErrResponseEmpty    = errors.New("response text is required")
	ErrLabelEmpty       = errors.New("label is required")
)
