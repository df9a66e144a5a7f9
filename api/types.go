// Package api defines the JSON request and response types of the HTTP
// endpoints, shared between the server handlers and the Go client.
package api

// RegisterEmbeddingRequest enrolls or replaces a subject's embedding.
type RegisterEmbeddingRequest struct {
	SubjectID  string    `json:"subject_id"`
	Embedding  []float32 `json:"embedding"`
	Confidence float64   `json:"confidence"`
}

// RegisterEmbeddingResponse reports the stored record.
type RegisterEmbeddingResponse struct {
	EmbeddingID  string `json:"embedding_id"`
	ModelVersion string `json:"model_version,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// VerifyRequest submits a challenge vector for comparison.
type VerifyRequest struct {
	SubjectID string    `json:"subject_id"`
	Embedding []float32 `json:"embedding"`
}

// VerifyResponse reports the comparison outcome. Reason is empty on
// success.
type VerifyResponse struct {
	Verified   bool    `json:"verified"`
	Similarity float64 `json:"similarity"`
	Threshold  float64 `json:"threshold"`
	Reason     string  `json:"reason,omitempty"`
}

// StatusResponse is the public view of a subject's enrollment.
type StatusResponse struct {
	Registered    bool    `json:"registered"`
	Confidence    float64 `json:"confidence,omitempty"`
	ModelVersion  string  `json:"model_version,omitempty"`
	CreatedAt     string  `json:"created_at,omitempty"`
	LastUsed      string  `json:"last_used,omitempty"`
	Contributions int     `json:"contribution_count"`
}

// DeleteRequest erases a subject's embeddings.
type DeleteRequest struct {
	SubjectID string `json:"subject_id"`
}

// DeleteResponse reports how many embeddings were deactivated.
type DeleteResponse struct {
	Deleted int `json:"deleted"`
}

// ModelInfoResponse describes the active model version.
type ModelInfoResponse struct {
	Version              string    `json:"version"`
	Dimension            int       `json:"dimension"`
	Weights              []float64 `json:"weights"`
	Participants         int       `json:"participants"`
	AverageLoss          *float64  `json:"average_loss,omitempty"`
	PendingContributions int       `json:"pending_contributions"`
	DeployedAt           string    `json:"deployed_at,omitempty"`
}

// SubmitGradientsRequest submits a gradient contribution against a
// named model version.
type SubmitGradientsRequest struct {
	SubjectID    string    `json:"subject_id"`
	ModelVersion string    `json:"model_version"`
	Dimension    int       `json:"dimension"`
	Gradients    []float64 `json:"gradients"`
	Loss         float64   `json:"loss"`
	SampleCount  int       `json:"sample_count"`
}

// SubmitGradientsResponse reports what the submission caused. When the
// submission completed a round, AggregatedVersion names the new version.
type SubmitGradientsResponse struct {
	ContributionID    string `json:"contribution_id"`
	ModelVersion      string `json:"model_version"`
	PendingCount      int    `json:"pending_count"`
	AggregatedVersion string `json:"aggregated_version,omitempty"`
}

// StatsResponse is the public aggregate view of the federation.
type StatsResponse struct {
	TotalParticipants  int    `json:"total_participants"`
	TotalContributions int    `json:"total_contributions"`
	ActiveVersion      string `json:"active_version,omitempty"`
}

// CreateSubjectRequest registers a subject for an external identifier.
type CreateSubjectRequest struct {
	ExternalID string `json:"external_id"`
}

// CreateSubjectResponse reports the internal subject ID.
type CreateSubjectResponse struct {
	SubjectID  string `json:"subject_id"`
	ExternalID string `json:"external_id"`
	CreatedAt  string `json:"created_at"`
}

// CreateModelRequest uploads a model version.
type CreateModelRequest struct {
	Version   string    `json:"version"`
	Dimension int       `json:"dimension"`
	Weights   []float64 `json:"weights"`
	Notes     string    `json:"notes,omitempty"`
}

// ModelVersionResponse describes a stored model version.
type ModelVersionResponse struct {
	Version      string `json:"version"`
	Participants int    `json:"participants"`
	Active       bool   `json:"active"`
	CreatedAt    string `json:"created_at"`
	DeployedAt   string `json:"deployed_at,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// ErrorResponse is the JSON error envelope of every failing request.
type ErrorResponse struct {
	Error string `json:"error"`
}
