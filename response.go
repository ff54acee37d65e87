package coop_door

import "coop_door/internal/models"

// OverrideRequest is the payload for setting a manual override.
type OverrideRequest struct {
	// Target door state until the end of the schedule day. Allowed: OPEN, CLOSED
	Target string `json:"target" binding:"required" example:"OPEN"`
}

// CommandResponse is returned by every operator command.
type CommandResponse struct {
	Status string            `json:"status" example:"recovered"`
	Door   models.DoorStatus `json:"door"`
}

type LogsResponse struct {
	Count  int                `json:"count"`
	Events []models.DoorEvent `json:"events"`
}

// ErrorResponse is the body of every non-2xx API reply.
type ErrorResponse struct {
	Error string `json:"error" example:"door is faulted; recover first"`
}

type SignUpResponse struct {
	ID int `json:"id" example:"1"`
}

// TokenResponse carries the bearer token for /api/v1.
type TokenResponse struct {
	Token string `json:"token"`
}
