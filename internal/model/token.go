package model

import "time"

// TokenData contains the data stored with a session token.
type TokenData struct {
	FID       int64     `json:"fid"`
	IssuedBy  string    `json:"issued_by"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
