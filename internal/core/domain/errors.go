package domain

import "errors"

var (
	ErrTargetNotFound  = errors.New("server not found")
	ErrInvalidTargetID = errors.New("invalid server id")
	ErrInvalidTarget   = errors.New("invalid server submission")
	ErrDuplicateTarget = errors.New("server already exists")
	ErrInvalidEndpoint = errors.New("invalid notification endpoint")
	ErrInvalidIdentity = errors.New("invalid voter identity")
	ErrInvalidUsername = errors.New("invalid username")
	ErrRecordingFailed = errors.New("failed to record vote")
	ErrTransient       = errors.New("transient storage failure")
)
