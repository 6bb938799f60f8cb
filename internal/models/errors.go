package models

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrIncidentClosed      = errors.New("incident is closed")
	ErrInvalidStatus       = errors.New("invalid status")
	ErrNoEligibleTeams     = errors.New("no eligible teams")
	ErrNoEligibleIncidents = errors.New("no eligible incidents")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrSessionExpired      = errors.New("session expired")
	ErrForbidden           = errors.New("forbidden")
	ErrTeamExists          = errors.New("team already exists")
)
