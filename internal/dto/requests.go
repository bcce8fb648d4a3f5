package dto

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	FirstName string `json:"first_name" binding:"max=50"`
	LastName  string `json:"last_name" binding:"max=50"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// UserResponse represents a user response
type UserResponse struct {
	ID              string  `json:"id"`
	Email           string  `json:"email"`
	FirstName       string  `json:"first_name"`
	LastName        string  `json:"last_name"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
	LastLoginAt     *string `json:"last_login_at"`
	StravaConnected bool    `json:"strava_connected"`
}

// AuthResponse is returned by register and login; the session itself
// travels in the cookie.
type AuthResponse struct {
	User           UserResponse `json:"user"`
	StravaMigrated bool         `json:"strava_migrated"`
}

// StravaStatusResponse reports whether the current session can call Strava
type StravaStatusResponse struct {
	Connected bool   `json:"connected"`
	Principal string `json:"principal,omitempty"`
}

// ActivityItem is one run in the activity picker
type ActivityItem struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	StartDate string  `json:"start_date"`
	Distance  float64 `json:"distance_km"`
	Time      string  `json:"time"`
	Pace      string  `json:"pace,omitempty"`
}

// ActivityListResponse lists runs together with the current selection
type ActivityListResponse struct {
	Connected  bool           `json:"connected"`
	Activities []ActivityItem `json:"activities"`
	Selected   any            `json:"selected,omitempty"`
}

// SweepResponse reports what an admin-triggered sweep removed
type SweepResponse struct {
	AccountsCleared int `json:"accounts_cleared"`
	GuestsDeleted   int `json:"guests_deleted"`
	Connected       int `json:"connected"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Message string `json:"message"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}
