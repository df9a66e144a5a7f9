package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/The-Web-Dev-Forge/federated-biometric-backend/api"
	"github.com/The-Web-Dev-Forge/federated-biometric-backend/bioauth"
	"github.com/The-Web-Dev-Forge/federated-biometric-backend/federation"
	"github.com/The-Web-Dev-Forge/federated-biometric-backend/interfaces"
)

// maxBodySize caps request bodies. Embeddings and gradients are a few
// thousand floats at most.
const maxBodySize = 4 << 20

// minRegistrationConfidence gates low quality captures at the API edge.
// The core accepts any confidence in [0, 1].
const minRegistrationConfidence = 0.5

// Handler implements the HTTP endpoints over the two services.
type Handler struct {
	auth       *bioauth.Service
	federation *federation.Service
	subjects   interfaces.SubjectDirectory
	log        *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(auth *bioauth.Service, fed *federation.Service, subjects interfaces.SubjectDirectory, log *slog.Logger) *Handler {
	return &Handler{
		auth:       auth,
		federation: fed,
		subjects:   subjects,
		log:        log,
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

// writeError maps service errors onto HTTP statuses. Internal failures
// never leak details to the client.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		h.writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "not found"})
	case errors.Is(err, interfaces.ErrDuplicateVersion):
		h.writeJSON(w, http.StatusConflict, api.ErrorResponse{Error: "version already exists"})
	case errors.Is(err, interfaces.ErrCryptoFailure):
		h.log.Warn("Cryptographic failure serving request", "err", err)
		h.writeJSON(w, http.StatusUnauthorized, api.ErrorResponse{Error: "verification unavailable"})
	case interfaces.IsValidation(err):
		h.writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
	default:
		h.log.Error("Internal error serving request", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "internal error"})
	}
}

// clientMetadata extracts the audit metadata of a request. Behind a
// proxy the client address is the first X-Forwarded-For value.
func clientMetadata(r *http.Request) interfaces.ClientMetadata {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		ip = strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
	}
	return interfaces.ClientMetadata{
		IP:        ip,
		UserAgent: r.UserAgent(),
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// HandleRegister handles POST /api/biometric/register.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterEmbeddingRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.SubjectID == "" {
		h.writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "subject_id is required"})
		return
	}
	if req.Confidence < minRegistrationConfidence {
		h.writeJSON(w, http.StatusBadRequest, api.ErrorResponse{
			Error: fmt.Sprintf("confidence %v below registration minimum %v", req.Confidence, minRegistrationConfidence),
		})
		return
	}

	rec, err := h.auth.Register(r.Context(), req.SubjectID, req.Embedding, req.Confidence)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, api.RegisterEmbeddingResponse{
		EmbeddingID:  rec.ID,
		ModelVersion: rec.ModelVersion,
		CreatedAt:    rec.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// HandleVerify handles POST /api/biometric/verify.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req api.VerifyRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.SubjectID == "" {
		h.writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "subject_id is required"})
		return
	}

	result, err := h.auth.Verify(r.Context(), req.SubjectID, req.Embedding, clientMetadata(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.VerifyResponse{
		Verified:   result.Success,
		Similarity: result.Similarity,
		Threshold:  result.Threshold,
		Reason:     result.Reason,
	})
}

// HandleStatus handles GET /api/biometric/status/{subject_id}.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subject_id")

	status, err := h.auth.Status(r.Context(), subjectID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.StatusResponse{
		Registered:    status.Registered,
		Confidence:    status.Confidence,
		ModelVersion:  status.ModelVersion,
		CreatedAt:     formatTime(status.CreatedAt),
		LastUsed:      formatTime(status.LastUsed),
		Contributions: status.Contributions,
	})
}

// HandleDelete handles POST /api/biometric/delete.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	var req api.DeleteRequest
	if !h.decode(w, r, &req) {
		return
	}

	n, err := h.auth.Erase(r.Context(), req.SubjectID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.DeleteResponse{Deleted: n})
}

// HandleModelInfo handles GET /api/federated/model.
func (h *Handler) HandleModelInfo(w http.ResponseWriter, r *http.Request) {
	active, pending, err := h.federation.ActiveModelInfo(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.ModelInfoResponse{
		Version:              active.Version,
		Dimension:            active.Payload.Dim,
		Weights:              active.Payload.Values,
		Participants:         active.Participants,
		AverageLoss:          active.AverageLoss,
		PendingContributions: pending,
		DeployedAt:           formatTime(active.DeployedAt),
	})
}

// HandleSubmitGradients handles POST /api/federated/contributions.
func (h *Handler) HandleSubmitGradients(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitGradientsRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.SubjectID == "" {
		h.writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "subject_id is required"})
		return
	}
	if req.ModelVersion == "" {
		h.writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "model_version is required"})
		return
	}

	payload := interfaces.GradientPayload{Dim: req.Dimension, Values: req.Gradients}
	result, err := h.federation.Submit(r.Context(), req.SubjectID, req.ModelVersion, payload, req.Loss, req.SampleCount)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := api.SubmitGradientsResponse{
		ContributionID: result.Contribution.ID,
		ModelVersion:   result.Contribution.ModelVersion,
		PendingCount:   result.PendingCount,
	}
	if result.Aggregated != nil {
		resp.AggregatedVersion = result.Aggregated.Version
	}
	h.writeJSON(w, http.StatusAccepted, resp)
}

// HandleStats handles GET /api/federated/stats.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.federation.Stats(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.StatsResponse{
		TotalParticipants:  stats.TotalParticipants,
		TotalContributions: stats.TotalContributions,
		ActiveVersion:      stats.ActiveVersion,
	})
}

// HandleCreateSubject handles POST /api/admin/subjects.
func (h *Handler) HandleCreateSubject(w http.ResponseWriter, r *http.Request) {
	var req api.CreateSubjectRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.ExternalID == "" {
		h.writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "external_id is required"})
		return
	}

	subject, err := h.subjects.CreateSubject(r.Context(), req.ExternalID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, api.CreateSubjectResponse{
		SubjectID:  string(subject.ID),
		ExternalID: subject.ExternalID,
		CreatedAt:  subject.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// HandleCreateModel handles POST /api/admin/models.
func (h *Handler) HandleCreateModel(w http.ResponseWriter, r *http.Request) {
	var req api.CreateModelRequest
	if !h.decode(w, r, &req) {
		return
	}

	payload := interfaces.GradientPayload{Dim: req.Dimension, Values: req.Weights}
	mv, err := h.federation.CreateVersion(r.Context(), req.Version, payload, req.Notes)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, modelVersionResponse(mv))
}

// HandleActivateModel handles POST /api/admin/models/{version}/activate.
func (h *Handler) HandleActivateModel(w http.ResponseWriter, r *http.Request) {
	version := chi.URLParam(r, "version")

	mv, err := h.federation.Activate(r.Context(), version)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, modelVersionResponse(mv))
}

func modelVersionResponse(mv interfaces.ModelVersion) api.ModelVersionResponse {
	return api.ModelVersionResponse{
		Version:      mv.Version,
		Participants: mv.Participants,
		Active:       mv.Active,
		CreatedAt:    mv.CreatedAt.UTC().Format(time.RFC3339),
		DeployedAt:   formatTime(mv.DeployedAt),
		Notes:        mv.Notes,
	}
}
