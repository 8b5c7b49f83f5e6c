package models

// Answer is the synthesized response to a question. It doubles as the
// body of a successful POST /chat.
type Answer struct {
	Answer     string   `json:"answer"`
	Sources    []string `json:"sources"`
	Confidence float64  `json:"confidence"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Service         string `json:"service"`
	Status          string `json:"status"`
	QdrantStatus    string `json:"qdrant_status"`
	OpenAIStatus    string `json:"openai_status"`
	DocumentsLoaded int    `json:"documents_loaded"`
	Error           string `json:"error,omitempty"`
}

// ErrorResponse is returned for every non-2xx answer of the API.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorCode string `json:"error_code,omitempty"`
}

// IngestReport summarizes one ingestion run.
type IngestReport struct {
	Skipped       bool  `json:"skipped"`
	Documents     int   `json:"documents"`
	Chunks        int   `json:"chunks"`
	Batches       int   `json:"batches"`
	FailedBatches []int `json:"failed_batches,omitempty"`
	Stored        int   `json:"stored"`
}

// IngestResponse is the body of POST /api/v1/ingest.
type IngestResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Report  IngestReport `json:"report"`
}
