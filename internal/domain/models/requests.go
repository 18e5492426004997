package models

// Output formats accepted by the signals endpoint.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// SignalsRequest is bound from the query string of GET /v1/signals.
type SignalsRequest struct {
	Token  string `query:"token" json:"token"`
	Format string `query:"format" json:"format" default:"json" validate:"oneof=json csv"`
}
