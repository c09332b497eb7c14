package models

import "time"

// AskRequest is the POST /ask body.
type AskRequest struct {
	Question string `json:"question"`
}

// AskResponse is the POST /ask success body.
type AskResponse struct {
	Answer string `json:"answer"`
}

// ErrorBody carries the stable machine-readable kind plus human detail.
type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ErrorResponse is the envelope for every JSON error the gateway returns.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Dependency names used as keys in HealthReport.Dependencies.
const (
	DependencyData      = "data"
	DependencyInference = "inference"
)

// Health status values.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
	StatusUp       = "up"
	StatusDown     = "down"
)

// DependencyStatus describes one downstream dependency probe result.
type DependencyStatus struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// HealthReport is the GET /health body. It is always served with 200;
// degradation is expressed in Status and Dependencies, never as an
// HTTP failure.
type HealthReport struct {
	Status        string                      `json:"status"`
	Environment   string                      `json:"environment"`
	Version       string                      `json:"version"`
	DatasetLoaded bool                        `json:"dataset_loaded"`
	RowCount      int                         `json:"row_count,omitempty"`
	Dependencies  map[string]DependencyStatus `json:"dependencies"`
}

// StatsSnapshot is the GET /stats body: a point-in-time aggregate
// description of the loaded dataset.
type StatsSnapshot struct {
	RowCount     int               `json:"row_count"`
	LastUpdated  time.Time         `json:"last_updated"`
	Columns      []string          `json:"columns"`
	DataTypes    map[string]string `json:"data_types"`
	SampleRecord map[string]any    `json:"sample_record,omitempty"`
	Table        string            `json:"table"`
	Environment  string            `json:"environment"`
}

// CountReport is the GET /count body, comparing the provider's live row
// count with the loaded snapshot.
type CountReport struct {
	ProviderCount int  `json:"provider_count"`
	LoadedCount   int  `json:"loaded_count"`
	AllLoaded     bool `json:"all_loaded"`
}

// ReloadResponse is the POST /reload success body.
type ReloadResponse struct {
	Status string `json:"status"`
}
