package domain

import "errors"

var (
	// ErrInvalidUserID is the platform refusing a user id it cannot resolve.
	ErrInvalidUserID = errors.New("platform: user id invalid")
	// ErrAlreadyBanned is a duplicate ban; callers treat it as success.
	ErrAlreadyBanned = errors.New("platform: user already banned")
	// ErrPlatformActionFailed wraps every other failed ban, delete or send.
	ErrPlatformActionFailed = errors.New("platform action failed")
)
