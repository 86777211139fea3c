package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/application"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	actorKey     contextKey = "actor"
)

const serviceName = "M42-Trust-Layer-Service"

func httpLogger() *slog.Logger {
	return slog.Default().With(
		"service", serviceName,
		"module", "http",
		"layer", "adapter",
	)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				httpLogger().ErrorContext(r.Context(), "panic recovered",
					"operation", "http_panic_recovery",
					"outcome", "failure",
					"request_id", requestIDFromContext(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"panic", rec,
				)
				writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", requestIDFromContext(r.Context()))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	bytes      int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Write(payload []byte) (int, error) {
	if r.statusCode == 0 {
		r.statusCode = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(payload)
	r.bytes += n
	return n, err
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, r)

		statusCode := recorder.statusCode
		if statusCode == 0 {
			statusCode = http.StatusOK
		}
		outcome := "success"
		if statusCode >= 400 {
			outcome = "failure"
		}
		fields := []any{
			"operation", "http_request",
			"outcome", outcome,
			"method", r.Method,
			"path", r.URL.Path,
			"status_code", statusCode,
			"bytes", recorder.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", requestIDFromContext(r.Context()),
		}
		switch {
		case statusCode >= 500:
			httpLogger().ErrorContext(r.Context(), "http request completed", fields...)
		case statusCode >= 400:
			httpLogger().WarnContext(r.Context(), "http request completed", fields...)
		default:
			httpLogger().InfoContext(r.Context(), "http request completed", fields...)
		}
	})
}

// authMiddleware resolves the caller. With a token verifier configured the
// bearer token must be a valid JWT; otherwise the bearer value is taken as the
// subject and X-Actor-Role as the role, which is only meant for local runs.
func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearerTokenFromHeader(r.Header.Get("Authorization"))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token", requestIDFromContext(r.Context()))
			return
		}
		actor := application.Actor{
			RequestID:      requestIDFromContext(r.Context()),
			IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
		}
		if h.verifier != nil {
			identity, err := h.verifier.Verify(r.Context(), raw)
			if err != nil {
				logHTTPOperationError(r.Context(), "authenticate", http.StatusUnauthorized, "unauthorized", "invalid token", err)
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or missing credentials", actor.RequestID)
				return
			}
			actor.SubjectID = identity.SubjectID
			actor.Role = identity.Role
		} else {
			actor.SubjectID = raw
			actor.Role = strings.ToLower(strings.TrimSpace(r.Header.Get("X-Actor-Role")))
		}
		if actor.Role == "" {
			actor.Role = application.RoleUser
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey, actor)))
	})
}

func bearerTokenFromHeader(header string) (string, error) {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", domain.ErrUnauthorized
	}
	token := strings.TrimSpace(header[7:])
	if token == "" {
		return "", domain.ErrUnauthorized
	}
	return token, nil
}

func actorFromContext(ctx context.Context) application.Actor {
	if a, ok := ctx.Value(actorKey).(application.Actor); ok {
		return a
	}
	return application.Actor{}
}

func requestIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(requestIDKey).(string); ok {
		return s
	}
	return ""
}

func logHTTPOperationError(ctx context.Context, operation string, statusCode int, code, message string, err error) {
	fields := []any{
		"operation", operation,
		"outcome", "failure",
		"status_code", statusCode,
		"error_code", code,
		"message", message,
		"request_id", requestIDFromContext(ctx),
	}
	if err != nil {
		fields = append(fields, "error", err.Error())
	}
	if statusCode >= 500 {
		httpLogger().ErrorContext(ctx, "http operation failed", fields...)
		return
	}
	httpLogger().WarnContext(ctx, "http operation failed", fields...)
}

func mapDomainError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrUnknownSlashKind), errors.Is(err, domain.ErrIdempotencyRequired):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrArbitrationRequired):
		return http.StatusForbidden, "arbitration_required"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrDealNotFound):
		return http.StatusNotFound, "deal_not_found"
	case errors.Is(err, domain.ErrChannelNotFound):
		return http.StatusNotFound, "channel_not_found"
	case errors.Is(err, domain.ErrChannelExists):
		return http.StatusConflict, "channel_exists"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrIdempotencyConflict):
		return http.StatusConflict, "idempotency_conflict"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrPaymentExpired):
		return http.StatusGone, "payment_expired"
	case errors.Is(err, domain.ErrInsufficientStake):
		return http.StatusUnprocessableEntity, "insufficient_stake"
	case errors.Is(err, domain.ErrLockPeriodActive):
		return http.StatusUnprocessableEntity, "lock_period_active"
	case errors.Is(err, domain.ErrEvidenceThreshold):
		return http.StatusUnprocessableEntity, "evidence_threshold"
	case errors.Is(err, domain.ErrPaymentMismatch):
		return http.StatusUnprocessableEntity, "payment_mismatch"
	case errors.Is(err, domain.ErrBudgetExceeded):
		return http.StatusUnprocessableEntity, "budget_exceeded"
	case errors.Is(err, domain.ErrExternalService):
		return http.StatusBadGateway, "external_service_failure"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status, code := mapDomainError(err)
	message := err.Error()
	if status >= 500 {
		message = "internal server error"
	}
	if status == http.StatusBadGateway {
		message = "upstream dependency failed"
	}
	logHTTPOperationError(r.Context(), operation, status, code, message, err)
	writeError(w, status, code, message, requestIDFromContext(r.Context()))
}
