package model

import "time"

// Participant represents an exam taker account.
type Participant struct {
	ID           int       `json:"id"`
	Identifier   string    `json:"identifier"` // login number, e.g. employee/student ID
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// LoginRequest is the payload for a participant login.
type LoginRequest struct {
	Identifier string `json:"identifier" binding:"required,min=3,max=32"`
	Password   string `json:"password" binding:"required,min=4,max=72"`
}
