package http

// ValidationError describes one rejected query parameter.
type ValidationError struct {
	Code    string `json:"code,omitempty" example:"ERR_ONEOF"`
	Field   string `json:"field,omitempty" example:"format"`
	Message string `json:"message,omitempty" example:"format must be one of: json, csv"`
}

// HealthResponse is the static liveness payload.
type HealthResponse struct {
	Status    string `json:"status" example:"ok"`
	Service   string `json:"service" example:"indicium-free-api"`
	Version   string `json:"version" example:"1.0.0"`
	Timestamp string `json:"timestamp"`
}
