package service

import "errors"

var (
	// ErrRunNotFound no run with the requested id
	ErrRunNotFound = errors.New("run not found")

	// ErrRunNotCancellable the run already started or finished
	ErrRunNotCancellable = errors.New("run can only be cancelled while pending")

	// ErrInvalidRecords prediction records do not match the model features
	ErrInvalidRecords = errors.New("invalid prediction records")
)
