package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/application"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/contracts"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
)

func (h *Handler) trustScore(w http.ResponseWriter, r *http.Request) {
	score, err := h.service.CalculateTrustScore(r.Context(), chi.URLParam(r, "user"))
	if err != nil {
		h.fail(w, r, "calculate_trust_score", err)
		return
	}
	writeSuccess(w, http.StatusOK, "", toTrustScore(score))
}

func (h *Handler) trustReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.GenerateTrustReport(r.Context(), chi.URLParam(r, "user"))
	if err != nil {
		h.fail(w, r, "generate_trust_report", err)
		return
	}
	writeSuccess(w, http.StatusOK, "", toTrustReport(report))
}

func (h *Handler) executeCampaign(w http.ResponseWriter, r *http.Request) {
	var req contracts.ExecuteCampaignRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	budget, err := domain.ParseAmount(req.Budget)
	if err != nil {
		h.fail(w, r, "execute_campaign", err)
		return
	}
	input := application.ExecuteCampaignInput{
		CampaignID:       strings.TrimSpace(req.CampaignID),
		Brand:            strings.TrimSpace(req.Brand),
		Budget:           budget,
		VerificationHash: strings.TrimSpace(req.VerificationHash),
	}
	for _, c := range req.Candidates {
		candidate, err := fromCandidate(c)
		if err != nil {
			h.fail(w, r, "execute_campaign", err)
			return
		}
		input.Candidates = append(input.Candidates, candidate)
	}
	if req.Requirements != nil {
		minTier, err := parseOptionalTier(req.Requirements.MinTier)
		if err != nil {
			h.fail(w, r, "execute_campaign", err)
			return
		}
		input.Requirements = application.CampaignRequirements{
			MinReputation: req.Requirements.MinReputation,
			MaxSybilRisk:  req.Requirements.MaxSybilRisk,
			MinTier:       minTier,
			MaxMatches:    req.Requirements.MaxMatches,
		}
	}
	if len(req.Performance) > 0 {
		input.Performance = make(map[string]domain.PerformanceMetrics, len(req.Performance))
		for payee, m := range req.Performance {
			input.Performance[strings.TrimSpace(payee)] = fromMetrics(m)
		}
	}
	result, err := h.service.ExecuteCampaign(r.Context(), actorFromContext(r.Context()), input)
	if err != nil {
		h.fail(w, r, "execute_campaign", err)
		return
	}
	writeSuccess(w, http.StatusOK, "", toCampaignResponse(result))
}

func (h *Handler) getCampaign(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.GetCampaign(r.Context(), chi.URLParam(r, "campaign_id"))
	if err != nil {
		h.fail(w, r, "get_campaign", err)
		return
	}
	writeSuccess(w, http.StatusOK, "", toCampaignResponse(result))
}
