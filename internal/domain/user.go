package domain

// Binding ties a live connection to the ephemeral user id and room it
// joined with.
type Binding struct {
	UserID string `json:"user_id"`
	RoomID string `json:"room"`
}
