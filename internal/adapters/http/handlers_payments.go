package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/application"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/contracts"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
)

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	var req contracts.CreatePaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		h.fail(w, r, "create_payment", err)
		return
	}
	p, err := h.service.CreatePaymentRequest(r.Context(), actorFromContext(r.Context()), application.CreatePaymentInput{
		From:       strings.TrimSpace(req.From),
		To:         strings.TrimSpace(req.To),
		Amount:     amount,
		Currency:   req.Currency,
		Resource:   strings.TrimSpace(req.Resource),
		Conditions: fromConditions(req.Conditions),
		Metadata:   req.Metadata,
	})
	if err != nil {
		h.fail(w, r, "create_payment", err)
		return
	}
	writeSuccess(w, http.StatusCreated, "", toPaymentResponse(p))
}

func (h *Handler) initiateDiscovery(w http.ResponseWriter, r *http.Request) {
	var req contracts.DiscoveryPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	budget, err := domain.ParseAmount(req.CampaignBudget)
	if err != nil {
		h.fail(w, r, "initiate_discovery_payment", err)
		return
	}
	flow, err := h.service.InitiateDiscoveryPayment(r.Context(), actorFromContext(r.Context()), application.DiscoveryInput{
		Brand:          strings.TrimSpace(req.Brand),
		CampaignID:     strings.TrimSpace(req.CampaignID),
		CampaignBudget: budget,
	})
	if err != nil {
		h.fail(w, r, "initiate_discovery_payment", err)
		return
	}
	writeSuccess(w, http.StatusCreated, "", contracts.DiscoveryFlowResponse{
		Payment:          toPaymentResponse(flow.Payment),
		MaxResults:       flow.MaxResults,
		QualityThreshold: flow.QualityThreshold,
		ExpiresAt:        flow.ExpiresAt,
	})
}

func (h *Handler) initiateVerification(w http.ResponseWriter, r *http.Request) {
	var req contracts.VerificationPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.service.InitiateVerificationPayment(r.Context(), actorFromContext(r.Context()), application.VerificationInput{
		Payer:   strings.TrimSpace(req.Payer),
		Kind:    strings.TrimSpace(req.Kind),
		Subject: strings.TrimSpace(req.Subject),
	})
	if err != nil {
		h.fail(w, r, "initiate_verification_payment", err)
		return
	}
	writeSuccess(w, http.StatusCreated, "", toPaymentResponse(p))
}

func (h *Handler) releaseSuccess(w http.ResponseWriter, r *http.Request) {
	var req contracts.SuccessPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	base, err := domain.ParseAmount(req.BaseCompensation)
	if err != nil {
		h.fail(w, r, "release_success_payment", err)
		return
	}
	p, err := h.service.ReleaseSuccessPayment(r.Context(), actorFromContext(r.Context()), application.SuccessPaymentInput{
		CampaignID:       strings.TrimSpace(req.CampaignID),
		Payer:            strings.TrimSpace(req.Payer),
		Payee:            strings.TrimSpace(req.Payee),
		Metrics:          fromMetrics(req.Metrics),
		BaseCompensation: base,
	})
	if err != nil {
		h.fail(w, r, "release_success_payment", err)
		return
	}
	writeSuccess(w, http.StatusCreated, "", toPaymentResponse(p))
}

func (h *Handler) completePayment(w http.ResponseWriter, r *http.Request) {
	var req contracts.CompletePaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	input := application.CompletePaymentInput{PaymentID: chi.URLParam(r, "payment_id")}
	if req.Proof != nil {
		proof, err := fromProof(*req.Proof)
		if err != nil {
			h.fail(w, r, "complete_payment", err)
			return
		}
		input.Proof = &proof
	}
	p, err := h.service.CompletePayment(r.Context(), actorFromContext(r.Context()), input)
	if err != nil {
		h.fail(w, r, "complete_payment", err)
		return
	}
	writeSuccess(w, http.StatusOK, "", toPaymentResponse(p))
}

func (h *Handler) refundPayment(w http.ResponseWriter, r *http.Request) {
	var req contracts.ReasonRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.service.RefundPayment(r.Context(), actorFromContext(r.Context()), application.RefundPaymentInput{
		PaymentID: chi.URLParam(r, "payment_id"),
		Reason:    strings.TrimSpace(req.Reason),
	})
	if err != nil {
		h.fail(w, r, "refund_payment", err)
		return
	}
	writeSuccess(w, http.StatusOK, "", toPaymentResponse(p))
}

func (h *Handler) disputePayment(w http.ResponseWriter, r *http.Request) {
	var req contracts.ReasonRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.service.DisputePayment(r.Context(), actorFromContext(r.Context()), application.DisputePaymentInput{
		PaymentID: chi.URLParam(r, "payment_id"),
		Reason:    strings.TrimSpace(req.Reason),
	})
	if err != nil {
		h.fail(w, r, "dispute_payment", err)
		return
	}
	writeSuccess(w, http.StatusOK, "", toPaymentResponse(p))
}

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetPayment(r.Context(), chi.URLParam(r, "payment_id"))
	if err != nil {
		h.fail(w, r, "get_payment", err)
		return
	}
	writeSuccess(w, http.StatusOK, "", toPaymentResponse(p))
}

func (h *Handler) paymentStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetPaymentStatistics(r.Context(), chi.URLParam(r, "user"))
	if err != nil {
		h.fail(w, r, "get_payment_statistics", err)
		return
	}
	writeSuccess(w, http.StatusOK, "", toPaymentStatistics(stats))
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	bal, err := h.service.GetBalance(r.Context(), user)
	if err != nil {
		h.fail(w, r, "get_balance", err)
		return
	}
	writeSuccess(w, http.StatusOK, "", contracts.BalanceResponse{User: user, Balance: bal.String()})
}

func (h *Handler) getQueryPrice(w http.ResponseWriter, r *http.Request) {
	resource := strings.TrimSpace(r.URL.Query().Get("resource"))
	price, err := h.service.QueryPrice(r.Context(), resource)
	if err != nil {
		h.fail(w, r, "get_query_price", err)
		return
	}
	writeSuccess(w, http.StatusOK, "", contracts.QueryPriceResponse{Resource: resource, Price: price.String()})
}

func (h *Handler) setQueryPrice(w http.ResponseWriter, r *http.Request) {
	var req contracts.QueryPriceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	price, err := domain.ParseAmount(req.Price)
	if err != nil {
		h.fail(w, r, "set_query_price", err)
		return
	}
	resource := strings.TrimSpace(req.Resource)
	if err := h.service.SetQueryPrice(r.Context(), actorFromContext(r.Context()), resource, price); err != nil {
		h.fail(w, r, "set_query_price", err)
		return
	}
	writeSuccess(w, http.StatusOK, "", contracts.QueryPriceResponse{Resource: resource, Price: price.String()})
}

func (h *Handler) payForQuery(w http.ResponseWriter, r *http.Request) {
	var req contracts.QueryAccessRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	actor := actorFromContext(r.Context())
	payer := strings.TrimSpace(req.Payer)
	if payer == "" {
		payer = actor.SubjectID
	}
	res, err := h.service.PayForQuery(r.Context(), actor, application.QueryAccessInput{
		Payer:    payer,
		Resource: strings.TrimSpace(req.Resource),
		Duration: time.Duration(req.DurationSeconds) * time.Second,
	})
	if err != nil {
		h.fail(w, r, "pay_for_query", err)
		return
	}
	writeSuccess(w, http.StatusCreated, "", contracts.QueryAccessResponse{
		Payer:     res.Access.Payer,
		Resource:  res.Access.Resource,
		Price:     res.Access.Price.String(),
		GrantedAt: res.Access.GrantedAt,
		ExpiresAt: res.Access.ExpiresAt,
		Payment:   toPaymentResponse(res.Payment),
	})
}

func (h *Handler) checkQueryAccess(w http.ResponseWriter, r *http.Request) {
	payer := strings.TrimSpace(r.URL.Query().Get("payer"))
	if payer == "" {
		payer = actorFromContext(r.Context()).SubjectID
	}
	resource := strings.TrimSpace(r.URL.Query().Get("resource"))
	ok, err := h.service.HasQueryAccess(r.Context(), payer, resource)
	if err != nil {
		h.fail(w, r, "has_query_access", err)
		return
	}
	writeSuccess(w, http.StatusOK, "", contracts.QueryAccessCheckResponse{Payer: payer, Resource: resource, HasAccess: ok})
}

func (h *Handler) openChannel(w http.ResponseWriter, r *http.Request) {
	var req contracts.OpenChannelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	deposit, err := domain.ParseAmount(req.Deposit)
	if err != nil {
		h.fail(w, r, "open_payment_channel", err)
		return
	}
	channel, err := h.service.OpenPaymentChannel(r.Context(), actorFromContext(r.Context()), application.OpenChannelInput{
		Payer:    req.Payer,
		Payee:    req.Payee,
		Deposit:  deposit,
		Duration: time.Duration(req.DurationSeconds) * time.Second,
	})
	if err != nil {
		h.fail(w, r, "open_payment_channel", err)
		return
	}
	writeSuccess(w, http.StatusCreated, "", toChannelResponse(channel))
}

func (h *Handler) closeChannel(w http.ResponseWriter, r *http.Request) {
	channel, err := h.service.ClosePaymentChannel(r.Context(), actorFromContext(r.Context()), application.CloseChannelInput{
		Payer: r.URL.Query().Get("payer"),
		Payee: chi.URLParam(r, "payee"),
	})
	if err != nil {
		h.fail(w, r, "close_payment_channel", err)
		return
	}
	writeSuccess(w, http.StatusOK, "channel closed", toChannelResponse(channel))
}

func (h *Handler) getChannel(w http.ResponseWriter, r *http.Request) {
	channel, err := h.service.GetPaymentChannel(r.Context(), channelPayer(r), chi.URLParam(r, "payee"))
	if err != nil {
		h.fail(w, r, "get_payment_channel", err)
		return
	}
	writeSuccess(w, http.StatusOK, "", toChannelResponse(channel))
}

func (h *Handler) listChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := h.service.ListPaymentChannels(r.Context(), channelPayer(r))
	if err != nil {
		h.fail(w, r, "list_payment_channels", err)
		return
	}
	out := make([]contracts.PaymentChannelResponse, 0, len(channels))
	for _, c := range channels {
		out = append(out, toChannelResponse(c))
	}
	writeSuccess(w, http.StatusOK, "", out)
}

func channelPayer(r *http.Request) string {
	if payer := strings.TrimSpace(r.URL.Query().Get("payer")); payer != "" {
		return payer
	}
	return actorFromContext(r.Context()).SubjectID
}

func (h *Handler) verifyReceipt(w http.ResponseWriter, r *http.Request) {
	var receipt domain.AccessReceipt
	if !decodeJSON(w, r, &receipt) {
		return
	}
	res, err := h.service.VerifyAccessReceipt(r.Context(), receipt)
	if err != nil {
		h.fail(w, r, "verify_access_receipt", err)
		return
	}
	writeSuccess(w, http.StatusOK, "", contracts.ReceiptVerificationResponse{Valid: res.Valid, PaymentID: res.PaymentID, Errors: res.Errors})
}
