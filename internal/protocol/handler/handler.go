// Package handler exposes the protocol orchestrator over HTTP. Mutations go
// through the orchestrator only; reads go to the layer services directly.
package handler

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	identityService "agentledger/internal/identity/service"
	protocolService "agentledger/internal/protocol/service"
	resumeService "agentledger/internal/resume/service"
	verificationService "agentledger/internal/verification/service"
	"agentledger/pkg/domain"
	dErrors "agentledger/pkg/domain-errors"
	"agentledger/pkg/platform/httputil"
	platformstrings "agentledger/pkg/platform/strings"
	"agentledger/pkg/requestcontext"
)

// Handler wires the registry endpoints to the orchestrator and the layer
// services.
type Handler struct {
	orchestrator  *protocolService.Orchestrator
	identities    *identityService.Service
	resumes       *resumeService.Service
	verifications *verificationService.Service
	logger        *slog.Logger
}

// New constructs the protocol handler with its dependencies.
func New(orchestrator *protocolService.Orchestrator, identities *identityService.Service, resumes *resumeService.Service, verifications *verificationService.Service, logger *slog.Logger) *Handler {
	return &Handler{
		orchestrator:  orchestrator,
		identities:    identities,
		resumes:       resumes,
		verifications: verifications,
		logger:        logger,
	}
}

// Register mounts the registry endpoints on the router. Callers are
// authenticated by the surrounding middleware; admin endpoints additionally
// sit behind the admin token middleware at router assembly time.
func (h *Handler) Register(r chi.Router) {
	r.Post("/agents", h.HandleRegisterAgent)
	r.Get("/agents/{agentID}", h.HandleGetAgent)
	r.Put("/agents/{agentID}/metadata/{key}", h.HandleSetMetadata)
	r.Get("/agents/{agentID}/metadata/{key}", h.HandleGetMetadata)
	r.Post("/agents/{agentID}/transfer", h.HandleTransferAgent)

	r.Post("/agents/{agentID}/jobs", h.HandleSubmitJob)
	r.Get("/agents/{agentID}/jobs", h.HandleListJobs)
	r.Get("/agents/{agentID}/jobs/{jobID}", h.HandleGetJob)
	r.Post("/agents/{agentID}/jobs/{jobID}/verify", h.HandleVerifyJob)
	r.Post("/agents/{agentID}/jobs/{jobID}/dispute", h.HandleDisputeJob)
	r.Get("/agents/{agentID}/stats", h.HandleAgentStats)
	r.Get("/agents/{agentID}/job-types", h.HandleJobTypeCounts)

	r.Post("/agents/{agentID}/feedback", h.HandleGiveFeedback)
	r.Post("/agents/{agentID}/feedback/{index}/revoke", h.HandleRevokeFeedback)
	r.Get("/agents/{agentID}/feedback/summary", h.HandleFeedbackSummary)

	r.Get("/agents/{agentID}/attestations", h.HandleAttestations)

	r.Get("/resumes/{resumeID}", h.HandleGetResume)
	r.Post("/resumes/{resumeID}/transfer", h.HandleTransferResume)

	r.Get("/verifiers", h.HandleListVerifiers)
	r.Post("/verifiers", h.HandleAddVerifier)
	r.Delete("/verifiers/{principal}", h.HandleRemoveVerifier)

	r.Post("/validations", h.HandleRequestValidation)
	r.Get("/validations/{requestHash}", h.HandleGetValidation)
	r.Post("/validations/{requestHash}/response", h.HandleRespondValidation)

	r.Get("/stats", h.HandleProtocolStats)
}

// RegisterAdmin mounts the owner-scoped endpoints; the caller is expected to
// wrap them with the admin token middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/pause", h.HandleSetPaused)
	r.Post("/fee", h.HandleSetFee)
	r.Post("/withdraw", h.HandleWithdrawFees)
}

func (h *Handler) HandleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, ok := h.requirePrincipal(w, ctx)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[RegisterAgentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	identity, resume, err := h.orchestrator.RegisterAgent(ctx, caller, req.MetadataKeys(), req.MetadataValues())
	if err != nil {
		h.logger.ErrorContext(ctx, "agent registration failed",
			"request_id", requestID,
			"caller", caller.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "agent registered",
		"request_id", requestID,
		"agent_id", identity.ID.String(),
	)
	httputil.WriteJSON(w, http.StatusCreated, FromIdentity(identity, resume))
}

func (h *Handler) HandleGetAgent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	agentID, ok := h.agentIDParam(w, r)
	if !ok {
		return
	}

	identity, err := h.identities.Get(ctx, agentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	resume, err := h.resumes.ByAgent(ctx, agentID)
	if err != nil {
		// An identity always has a resume; surface the inconsistency.
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromIdentity(identity, resume))
}

func (h *Handler) HandleSetMetadata(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, ok := h.requirePrincipal(w, ctx)
	if !ok {
		return
	}
	agentID, ok := h.agentIDParam(w, r)
	if !ok {
		return
	}
	key := chi.URLParam(r, "key")
	req, ok := httputil.DecodeAndPrepare[SetMetadataRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.orchestrator.SetMetadata(ctx, caller, agentID, key, req.parsedValue); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleGetMetadata(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	agentID, ok := h.agentIDParam(w, r)
	if !ok {
		return
	}
	key := chi.URLParam(r, "key")

	value, err := h.identities.MetadataValue(ctx, agentID, key)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MetadataEntryResponse{
		Key:   key,
		Value: base64.StdEncoding.EncodeToString(value),
	})
}

func (h *Handler) HandleTransferAgent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, ok := h.requirePrincipal(w, ctx)
	if !ok {
		return
	}
	agentID, ok := h.agentIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[TransferRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.orchestrator.TransferIdentity(ctx, caller, agentID, req.parsedController); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleSubmitJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, ok := h.requirePrincipal(w, ctx)
	if !ok {
		return
	}
	agentID, ok := h.agentIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[SubmitJobRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	record, err := h.orchestrator.SubmitJobRecord(ctx, caller, agentID, protocolService.SubmitJobParams{
		JobType:     req.parsedJobType,
		Description: req.Description,
		ProofURI:    req.ProofURI,
		ProofHash:   req.parsedHash,
		Value:       req.Value,
		Tags:        req.Tags,
		OfferedFee:  req.OfferedFee,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "job submission failed",
			"request_id", requestID,
			"agent_id", agentID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromJobRecord(record))
}

func (h *Handler) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	agentID, ok := h.agentIDParam(w, r)
	if !ok {
		return
	}
	records, err := h.resumes.JobRecords(ctx, agentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromJobRecords(records))
}

func (h *Handler) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	agentID, ok := h.agentIDParam(w, r)
	if !ok {
		return
	}
	jobID, ok := h.jobIDParam(w, r)
	if !ok {
		return
	}
	record, err := h.resumes.JobRecord(ctx, agentID, jobID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromJobRecord(record))
}

func (h *Handler) HandleVerifyJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, ok := h.requirePrincipal(w, ctx)
	if !ok {
		return
	}
	agentID, ok := h.agentIDParam(w, r)
	if !ok {
		return
	}
	jobID, ok := h.jobIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[VerifyJobRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	record, err := h.orchestrator.VerifyJob(ctx, caller, agentID, jobID, req.Success, req.parsedHash)
	if err != nil {
		h.logger.ErrorContext(ctx, "job verification failed",
			"request_id", requestID,
			"agent_id", agentID.String(),
			"job_id", jobID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromJobRecord(record))
}

func (h *Handler) HandleDisputeJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, ok := h.requirePrincipal(w, ctx)
	if !ok {
		return
	}
	agentID, ok := h.agentIDParam(w, r)
	if !ok {
		return
	}
	jobID, ok := h.jobIDParam(w, r)
	if !ok {
		return
	}

	record, err := h.orchestrator.DisputeJob(ctx, caller, agentID, jobID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromJobRecord(record))
}

func (h *Handler) HandleAgentStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	agentID, ok := h.agentIDParam(w, r)
	if !ok {
		return
	}
	stats, err := h.resumes.Stats(ctx, agentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) HandleJobTypeCounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	agentID, ok := h.agentIDParam(w, r)
	if !ok {
		return
	}
	counts, err := h.resumes.JobTypeCounts(ctx, agentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, counts)
}

func (h *Handler) HandleGiveFeedback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, ok := h.requirePrincipal(w, ctx)
	if !ok {
		return
	}
	agentID, ok := h.agentIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[GiveFeedbackRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	index, err := h.orchestrator.GiveFeedback(ctx, caller, agentID, resumeService.FeedbackParams{
		Score:    req.Score,
		Tag1:     req.Tag1,
		Tag2:     req.Tag2,
		FileURI:  req.FileURI,
		FileHash: req.parsedHash,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FeedbackIndexResponse{
		Client: caller.String(),
		Index:  index,
	})
}

func (h *Handler) HandleRevokeFeedback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, ok := h.requirePrincipal(w, ctx)
	if !ok {
		return
	}
	agentID, ok := h.agentIDParam(w, r)
	if !ok {
		return
	}
	index, err := parseIndex(chi.URLParam(r, "index"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.orchestrator.RevokeFeedback(ctx, caller, agentID, index); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleFeedbackSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	agentID, ok := h.agentIDParam(w, r)
	if !ok {
		return
	}

	var clients []domain.Principal
	for _, raw := range splitQueryList(r.URL.Query().Get("clients")) {
		clients = append(clients, domain.Principal(raw))
	}
	tags := splitQueryList(r.URL.Query().Get("tags"))

	summary, err := h.resumes.SummarizeFeedback(ctx, agentID, clients, tags)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

func (h *Handler) HandleAttestations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	agentID, ok := h.agentIDParam(w, r)
	if !ok {
		return
	}
	attestations, err := h.verifications.Attestations(ctx, agentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromAttestations(attestations))
}

func (h *Handler) HandleGetResume(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resumeID, ok := h.resumeIDParam(w, r)
	if !ok {
		return
	}
	resume, err := h.resumes.Get(ctx, resumeID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromResume(resume))
}

// HandleTransferResume always fails with a conflict: resumes are permanently
// bound. The endpoint exists so the non-transferability contract is
// observable rather than a missing route.
func (h *Handler) HandleTransferResume(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	if _, ok := h.requirePrincipal(w, ctx); !ok {
		return
	}
	resumeID, ok := h.resumeIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[TransferRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	err := h.resumes.Transfer(ctx, resumeID, req.parsedController)
	httputil.WriteError(w, err)
}

func (h *Handler) HandleListVerifiers(w http.ResponseWriter, r *http.Request) {
	verifiers, err := h.verifications.Verifiers(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, verifiers)
}

func (h *Handler) HandleAddVerifier(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, ok := h.requirePrincipal(w, ctx)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[VerifierRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.orchestrator.AddVerifier(ctx, caller, req.parsedPrincipal); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleRemoveVerifier(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, ok := h.requirePrincipal(w, ctx)
	if !ok {
		return
	}
	verifier, err := domain.ParsePrincipal(chi.URLParam(r, "principal"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.orchestrator.RemoveVerifier(ctx, caller, verifier); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleRequestValidation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, ok := h.requirePrincipal(w, ctx)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[RequestValidationRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	err := h.orchestrator.RequestValidation(ctx, caller, req.parsedValidator, req.parsedAgentID, req.RequestURI, req.parsedHash)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	validation, err := h.verifications.Validation(ctx, req.parsedHash)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromValidation(validation))
}

func (h *Handler) HandleGetValidation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	requestHash, err := domain.ParseDigest(chi.URLParam(r, "requestHash"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	validation, err := h.verifications.Validation(ctx, requestHash)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromValidation(validation))
}

func (h *Handler) HandleRespondValidation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, ok := h.requirePrincipal(w, ctx)
	if !ok {
		return
	}
	requestHash, err := domain.ParseDigest(chi.URLParam(r, "requestHash"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[RespondValidationRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	err = h.orchestrator.RespondValidation(ctx, caller, requestHash, req.Value, req.ResponseURI, req.parsedHash, req.Tag)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	validation, err := h.verifications.Validation(ctx, requestHash)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromValidation(validation))
}

func (h *Handler) HandleProtocolStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.orchestrator.Stats(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) HandleSetPaused(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, ok := h.requirePrincipal(w, ctx)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[PauseRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.orchestrator.SetPaused(ctx, caller, req.Paused); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleSetFee(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, ok := h.requirePrincipal(w, ctx)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[FeeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.orchestrator.SetVerificationFee(ctx, caller, req.Fee); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleWithdrawFees(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, ok := h.requirePrincipal(w, ctx)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[WithdrawRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	amount, err := h.orchestrator.WithdrawFees(ctx, caller, req.parsedTo)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, WithdrawResponse{
		To:     req.parsedTo.String(),
		Amount: amount,
	})
}

func (h *Handler) requirePrincipal(w http.ResponseWriter, ctx context.Context) (domain.Principal, bool) {
	caller := requestcontext.Principal(ctx)
	if caller.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return "", false
	}
	return caller, true
}

func (h *Handler) agentIDParam(w http.ResponseWriter, r *http.Request) (domain.AgentID, bool) {
	agentID, err := domain.ParseAgentID(chi.URLParam(r, "agentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return 0, false
	}
	return agentID, true
}

func (h *Handler) jobIDParam(w http.ResponseWriter, r *http.Request) (domain.JobID, bool) {
	jobID, err := domain.ParseJobID(chi.URLParam(r, "jobID"))
	if err != nil {
		httputil.WriteError(w, err)
		return 0, false
	}
	return jobID, true
}

func (h *Handler) resumeIDParam(w http.ResponseWriter, r *http.Request) (domain.ResumeID, bool) {
	resumeID, err := domain.ParseResumeID(chi.URLParam(r, "resumeID"))
	if err != nil {
		httputil.WriteError(w, err)
		return 0, false
	}
	return resumeID, true
}

func parseIndex(raw string) (int, error) {
	index, err := strconv.Atoi(raw)
	if err != nil || index < 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "feedback index must be a non-negative integer")
	}
	return index, nil
}

func splitQueryList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := platformstrings.DedupeAndTrim(strings.Split(raw, ","))
	if len(parts) == 0 {
		return nil
	}
	return parts
}
