package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/application"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/ports"
)

type Handler struct {
	service  *application.Service
	verifier ports.TokenVerifier
}

// NewHandler builds the HTTP handler. A nil verifier trusts the bearer value
// as the subject id.
func NewHandler(service *application.Service, verifier ports.TokenVerifier) *Handler {
	return &Handler{service: service, verifier: verifier}
}

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { writeSuccess(w, http.StatusOK, "ok", nil) })
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) { writeSuccess(w, http.StatusOK, "ready", nil) })

	r.Route("/v1/trust", func(r chi.Router) {
		r.Use(handler.authMiddleware)

		r.Route("/staking", func(r chi.Router) {
			r.Post("/stake", handler.stake)
			r.Post("/unstake", handler.unstake)
			r.Post("/slash", handler.slashStake)
			r.Get("/{owner}", handler.getStake)
			r.Get("/{owner}/history", handler.stakeHistory)
			r.Get("/{owner}/requirements", handler.verifyRequirements)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/", handler.createPayment)
			r.Post("/discovery", handler.initiateDiscovery)
			r.Post("/verification", handler.initiateVerification)
			r.Post("/success", handler.releaseSuccess)
			r.Get("/{payment_id}", handler.getPayment)
			r.Post("/{payment_id}/complete", handler.completePayment)
			r.Post("/{payment_id}/refund", handler.refundPayment)
			r.Post("/{payment_id}/dispute", handler.disputePayment)
		})

		r.Route("/queries", func(r chi.Router) {
			r.Get("/price", handler.getQueryPrice)
			r.Put("/price", handler.setQueryPrice)
			r.Post("/access", handler.payForQuery)
			r.Get("/access", handler.checkQueryAccess)
		})
		r.Route("/channels", func(r chi.Router) {
			r.Post("/", handler.openChannel)
			r.Get("/", handler.listChannels)
			r.Get("/{payee}", handler.getChannel)
			r.Delete("/{payee}", handler.closeChannel)
		})
		r.Post("/receipts/verify", handler.verifyReceipt)

		r.Route("/escrow", func(r chi.Router) {
			r.Post("/", handler.createEscrow)
			r.Get("/statistics", handler.slashingStatistics)
			r.Get("/{deal_id}", handler.getDeal)
			r.Post("/{deal_id}/activate", handler.activateDeal)
			r.Post("/{deal_id}/release", handler.releaseEscrow)
			r.Post("/{deal_id}/slash", handler.slashDeal)
		})

		r.Route("/users/{user}", func(r chi.Router) {
			r.Get("/payment-statistics", handler.paymentStatistics)
			r.Get("/balance", handler.balance)
			r.Get("/deals", handler.userDeals)
			r.Get("/score", handler.trustScore)
			r.Get("/report", handler.trustReport)
		})

		r.Route("/campaigns", func(r chi.Router) {
			r.Post("/", handler.executeCampaign)
			r.Get("/{campaign_id}", handler.getCampaign)
		})
	})
	return r
}
