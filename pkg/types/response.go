package types

// StatusEnvelope is the success body for write endpoints ({"status":"ok"}).
type StatusEnvelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ErrorEnvelope is the flat error body kiosk clients consume.
type ErrorEnvelope struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}
