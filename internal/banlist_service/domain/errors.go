package domain

import "errors"

var (
	ErrNotFound = errors.New("user is not banned")
	// ErrInvalidInput marks a record rejected before a batch is submitted.
	ErrInvalidInput = errors.New("invalid ban record")
	// ErrAutomatedBan is returned when a manual ban would overwrite an automated one.
	ErrAutomatedBan = errors.New("user already banned by an automated module")
	// ErrAuthorityUnavailable wraps every failure talking to the external ban authority.
	ErrAuthorityUnavailable = errors.New("ban authority unavailable")
)
