package models

// CollectionInfo describes the vector collection backing the pipeline.
type CollectionInfo struct {
	Name       string `json:"name"`
	PointCount int    `json:"points_count"`
	Status     string `json:"status"`
	VectorSize int    `json:"vector_size,omitempty"`
	Distance   string `json:"distance,omitempty"`
}

// PipelineStatus is the process-wide readiness of the retrieval pipeline.
type PipelineStatus struct {
	DocumentsLoaded        bool           `json:"documents_loaded"`
	VectorIndexConnected   bool           `json:"vector_index_connected"`
	LanguageModelConnected bool           `json:"language_model_connected"`
	StoredChunkCount       int            `json:"stored_chunk_count"`
	Collection             CollectionInfo `json:"collection"`
}
