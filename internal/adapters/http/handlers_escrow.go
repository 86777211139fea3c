package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/application"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/contracts"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
)

func (h *Handler) createEscrow(w http.ResponseWriter, r *http.Request) {
	var req contracts.CreateEscrowRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	total, err := domain.ParseAmount(req.TotalAmount)
	if err != nil {
		h.fail(w, r, "create_escrow", err)
		return
	}
	deal, err := h.service.CreateEscrow(r.Context(), actorFromContext(r.Context()), application.CreateEscrowInput{
		Payer:                strings.TrimSpace(req.Payer),
		Payee:                strings.TrimSpace(req.Payee),
		TotalAmount:          total,
		PerformanceThreshold: req.PerformanceThreshold,
		VerificationHash:     strings.TrimSpace(req.VerificationHash),
		Metadata:             req.Metadata,
	})
	if err != nil {
		h.fail(w, r, "create_escrow", err)
		return
	}
	writeSuccess(w, http.StatusCreated, "", toDealResponse(deal))
}

func (h *Handler) activateDeal(w http.ResponseWriter, r *http.Request) {
	deal, err := h.service.ActivateDeal(r.Context(), actorFromContext(r.Context()), chi.URLParam(r, "deal_id"))
	if err != nil {
		h.fail(w, r, "activate_deal", err)
		return
	}
	writeSuccess(w, http.StatusOK, "", toDealResponse(deal))
}

func (h *Handler) releaseEscrow(w http.ResponseWriter, r *http.Request) {
	var req contracts.ReleaseEscrowRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	maxReleasable, err := parseOptionalAmount(req.MaxReleasable)
	if err != nil {
		h.fail(w, r, "release_escrow", err)
		return
	}
	actor := actorFromContext(r.Context())
	res, err := h.service.ReleasePayment(r.Context(), actor, application.ReleaseEscrowInput{
		DealID:        chi.URLParam(r, "deal_id"),
		Proof:         fromMetrics(req.Proof),
		MaxReleasable: maxReleasable,
		IsVerifier:    actor.IsVerifier(),
	})
	if err != nil {
		h.fail(w, r, "release_escrow", err)
		return
	}
	writeSuccess(w, http.StatusOK, "", toReleaseResponse(res))
}

func (h *Handler) slashDeal(w http.ResponseWriter, r *http.Request) {
	var req contracts.SlashDealRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	actor := actorFromContext(r.Context())
	deal, err := h.service.SlashDeal(r.Context(), actor, application.SlashDealInput{
		DealID:       chi.URLParam(r, "deal_id"),
		Reason:       req.Reason,
		Evidence:     req.Evidence,
		IsArbitrator: actor.IsArbitrator(),
	})
	if err != nil {
		h.fail(w, r, "slash_deal", err)
		return
	}
	writeSuccess(w, http.StatusOK, "", toDealResponse(deal))
}

func (h *Handler) getDeal(w http.ResponseWriter, r *http.Request) {
	deal, err := h.service.GetDeal(r.Context(), chi.URLParam(r, "deal_id"))
	if err != nil {
		h.fail(w, r, "get_deal", err)
		return
	}
	writeSuccess(w, http.StatusOK, "", toDealResponse(deal))
}

func (h *Handler) userDeals(w http.ResponseWriter, r *http.Request) {
	deals, err := h.service.GetUserDeals(r.Context(), chi.URLParam(r, "user"))
	if err != nil {
		h.fail(w, r, "get_user_deals", err)
		return
	}
	out := make([]contracts.EscrowDealResponse, 0, len(deals))
	for _, d := range deals {
		out = append(out, toDealResponse(d))
	}
	writeSuccess(w, http.StatusOK, "", out)
}

func (h *Handler) slashingStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetSlashingStatistics(r.Context())
	if err != nil {
		h.fail(w, r, "get_slashing_statistics", err)
		return
	}
	writeSuccess(w, http.StatusOK, "", toSlashingStatistics(stats))
}
