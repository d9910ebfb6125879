package models

// RoomSummary is one entry of the admin room listing.
type RoomSummary struct {
	ID          string `json:"id"`
	MemberCount int    `json:"memberCount"`
}

// RoomInfo describes one room for the admin API.
type RoomInfo struct {
	ID      string   `json:"id"`
	Members []string `json:"members"`
	// MirroredCount is the member count held by the presence mirror, when one
	// is configured.
	MirroredCount *int64 `json:"mirroredCount,omitempty"`
}

// LoginRequest is the admin login body.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries the admin token.
type LoginResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}
