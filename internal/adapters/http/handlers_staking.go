package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/application"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/contracts"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
)

func (h *Handler) stake(w http.ResponseWriter, r *http.Request) {
	var req contracts.StakeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, err := domain.ParseTokenAmount(req.Amount)
	if err != nil {
		h.fail(w, r, "stake", err)
		return
	}
	target, err := parseOptionalTier(req.TargetTier)
	if err != nil {
		h.fail(w, r, "stake", err)
		return
	}
	res, err := h.service.Stake(r.Context(), actorFromContext(r.Context()), application.StakeInput{
		Owner:      strings.TrimSpace(req.Owner),
		Amount:     amount,
		TargetTier: target,
	})
	if err != nil {
		h.fail(w, r, "stake", err)
		return
	}
	writeSuccess(w, http.StatusOK, "", toStakeResultResponse(res))
}

func (h *Handler) unstake(w http.ResponseWriter, r *http.Request) {
	var req contracts.UnstakeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, err := domain.ParseTokenAmount(req.Amount)
	if err != nil {
		h.fail(w, r, "unstake", err)
		return
	}
	res, err := h.service.Unstake(r.Context(), actorFromContext(r.Context()), application.UnstakeInput{
		Owner:  strings.TrimSpace(req.Owner),
		Amount: amount,
	})
	if err != nil {
		h.fail(w, r, "unstake", err)
		return
	}
	writeSuccess(w, http.StatusOK, "", contracts.UnstakeResponse{
		Owner:          res.Owner,
		RemainingStake: res.RemainingStake.String(),
		NewTier:        string(res.NewTier),
		Qualified:      res.Qualified,
		TxHash:         res.TxHash,
	})
}

func (h *Handler) slashStake(w http.ResponseWriter, r *http.Request) {
	var req contracts.SlashRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	actor := actorFromContext(r.Context())
	res, err := h.service.ExecuteSlash(r.Context(), actor, application.SlashInput{
		Owner:        strings.TrimSpace(req.Owner),
		Condition:    domain.SlashKind(strings.TrimSpace(req.Condition)),
		Evidence:     req.Evidence,
		IsArbitrator: actor.IsArbitrator(),
	})
	if err != nil {
		h.fail(w, r, "slash", err)
		return
	}
	writeSuccess(w, http.StatusOK, "", contracts.SlashResponse{
		Owner:          res.Owner,
		Condition:      string(res.Condition),
		SlashedAmount:  res.SlashedAmount.String(),
		RemainingStake: res.RemainingStake.String(),
		NewTier:        string(res.NewTier),
		TxHash:         res.TxHash,
	})
}

func (h *Handler) getStake(w http.ResponseWriter, r *http.Request) {
	acc, err := h.service.GetStake(r.Context(), chi.URLParam(r, "owner"))
	if err != nil {
		h.fail(w, r, "get_stake", err)
		return
	}
	writeSuccess(w, http.StatusOK, "", toStakeResponse(acc, ""))
}

func (h *Handler) stakeHistory(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.StakeHistory(r.Context(), chi.URLParam(r, "owner"))
	if err != nil {
		h.fail(w, r, "stake_history", err)
		return
	}
	writeSuccess(w, http.StatusOK, "", toStakeEvents(events))
}

func (h *Handler) verifyRequirements(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	tier, err := domain.ParseTier(r.URL.Query().Get("tier"))
	if err != nil {
		h.fail(w, r, "verify_staking_requirements", err)
		return
	}
	ok, err := h.service.VerifyStakingRequirements(r.Context(), owner, tier)
	if err != nil {
		h.fail(w, r, "verify_staking_requirements", err)
		return
	}
	writeSuccess(w, http.StatusOK, "", contracts.RequirementsResponse{Owner: owner, RequiredTier: string(tier), Meets: ok})
}
