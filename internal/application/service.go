package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/ports"
)

type Service struct {
	cfg         Config
	stakes      ports.StakeRepository
	payments    ports.PaymentRepository
	balances    ports.BalanceRepository
	queries     ports.QueryAccessRepository
	channels    ports.PaymentChannelRepository
	escrows     ports.EscrowRepository
	campaigns   ports.CampaignRepository
	idempotency ports.IdempotencyRepository
	outbox      ports.OutboxRepository
	ledger      ports.TokenLedgerPort
	facilitator ports.PaymentFacilitatorPort
	reputation  ports.ReputationSignalPort
	audit       ports.AuditPublishPort
	monitor     ports.PerformanceMonitorPort
	scoreCache  ports.TrustScoreCache
	locks       *keyedLocker
	nowFn       func() time.Time
}

type Dependencies struct {
	Config      Config
	Stakes      ports.StakeRepository
	Payments    ports.PaymentRepository
	Balances    ports.BalanceRepository
	Queries     ports.QueryAccessRepository
	Channels    ports.PaymentChannelRepository
	Escrows     ports.EscrowRepository
	Campaigns   ports.CampaignRepository
	Idempotency ports.IdempotencyRepository
	Outbox      ports.OutboxRepository
	Ledger      ports.TokenLedgerPort
	Facilitator ports.PaymentFacilitatorPort
	Reputation  ports.ReputationSignalPort
	Audit       ports.AuditPublishPort
	Monitor     ports.PerformanceMonitorPort
	ScoreCache  ports.TrustScoreCache
	Now         func() time.Time
}

func NewService(deps Dependencies) *Service {
	cfg := deps.Config
	if cfg.ServiceName == "" {
		cfg.ServiceName = "M42-Trust-Layer-Service"
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 7 * 24 * time.Hour
	}
	if cfg.ExternalCallTimeout <= 0 {
		cfg.ExternalCallTimeout = 5 * time.Second
	}
	if cfg.ProofMaxAge <= 0 {
		cfg.ProofMaxAge = 5 * time.Minute
	}
	if cfg.TrustCacheTTL <= 0 {
		cfg.TrustCacheTTL = 30 * time.Second
	}
	if cfg.TreasuryAccount == "" {
		cfg.TreasuryAccount = "treasury"
	}
	if cfg.BaseQueryPrice <= 0 {
		cfg.BaseQueryPrice = domain.Whole(1)
	}
	if cfg.DefaultQueryAccess <= 0 {
		cfg.DefaultQueryAccess = 24 * time.Hour
	}
	if cfg.MaxCampaignBudget <= 0 {
		cfg.MaxCampaignBudget = domain.Whole(10_000_000)
	}
	if cfg.CampaignMaxMatches <= 0 {
		cfg.CampaignMaxMatches = domain.DiscoveryMaxResults
	}
	if cfg.SettlementConcurrency <= 0 {
		cfg.SettlementConcurrency = 4
	}
	if cfg.FraudEvidenceThreshold <= 0 {
		cond, _ := domain.LookupSlashCondition(domain.SlashFakeEngagement)
		cfg.FraudEvidenceThreshold = cond.EvidenceThreshold
	}
	if cfg.DefaultMaxSybilRisk <= 0 {
		cfg.DefaultMaxSybilRisk = 0.3
	}
	nowFn := deps.Now
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		cfg:         cfg,
		stakes:      deps.Stakes,
		payments:    deps.Payments,
		balances:    deps.Balances,
		queries:     deps.Queries,
		channels:    deps.Channels,
		escrows:     deps.Escrows,
		campaigns:   deps.Campaigns,
		idempotency: deps.Idempotency,
		outbox:      deps.Outbox,
		ledger:      deps.Ledger,
		facilitator: deps.Facilitator,
		reputation:  deps.Reputation,
		audit:       deps.Audit,
		monitor:     deps.Monitor,
		scoreCache:  deps.ScoreCache,
		locks:       newKeyedLocker(),
		nowFn:       nowFn,
	}
}

func (s *Service) ServiceName() string { return s.cfg.ServiceName }

func (s *Service) systemActor(requestID string) Actor {
	return Actor{SubjectID: s.cfg.ServiceName, Role: RoleSystem, RequestID: requestID}
}

func requireActor(actor Actor) error {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return domain.ErrUnauthorized
	}
	return nil
}

// requireSelfOrPrivileged guards owner-scoped writes.
func requireSelfOrPrivileged(actor Actor, owner string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if actor.privileged() || actor.SubjectID == owner {
		return nil
	}
	return fmt.Errorf("%w: %s cannot act for %s", domain.ErrForbidden, actor.SubjectID, owner)
}

// withExternalTimeout bounds a collaborator call.
func (s *Service) withExternalTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.ExternalCallTimeout)
}

func externalFailure(operation string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrExternalService, operation, err)
}

func (s *Service) warn(ctx context.Context, msg, operation string, err error, fields ...any) {
	attrs := []any{
		"service", s.cfg.ServiceName,
		"module", "application",
		"layer", "application",
		"operation", operation,
		"outcome", "warning",
	}
	attrs = append(attrs, fields...)
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	slog.Default().WarnContext(ctx, msg, attrs...)
}

func (s *Service) logError(ctx context.Context, msg, operation string, err error, fields ...any) {
	attrs := []any{
		"service", s.cfg.ServiceName,
		"module", "application",
		"layer", "application",
		"operation", operation,
		"outcome", "failure",
		"error", err,
	}
	attrs = append(attrs, fields...)
	slog.Default().ErrorContext(ctx, msg, attrs...)
}

// idempotent replays the stored response for a repeated Idempotency-Key and
// records the response of a first execution. Keys are scoped to the calling
// subject and operation. Calls without a key run directly.
func idempotent[T any](ctx context.Context, s *Service, actor Actor, operation string, input any, fn func() (T, error)) (T, error) {
	var zero T
	key := strings.TrimSpace(actor.IdempotencyKey)
	if s.idempotency == nil || key == "" {
		return fn()
	}
	key = scopedIdempotencyKey(actor.SubjectID, operation, key)
	requestHash := hashJSON(input)
	rec, err := s.idempotency.Get(ctx, key, s.nowFn())
	if err != nil {
		return zero, err
	}
	if rec != nil {
		if rec.RequestHash != requestHash {
			return zero, domain.ErrIdempotencyConflict
		}
		if len(rec.ResponseBody) == 0 {
			return zero, fmt.Errorf("%w: request still in flight", domain.ErrIdempotencyConflict)
		}
		var cached T
		if err := json.Unmarshal(rec.ResponseBody, &cached); err == nil {
			return cached, nil
		}
	}
	if rec == nil {
		if err := s.idempotency.Reserve(ctx, key, requestHash, s.nowFn().Add(s.cfg.IdempotencyTTL)); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return zero, domain.ErrIdempotencyConflict
			}
			return zero, err
		}
	}
	out, err := fn()
	if err != nil {
		if releaseErr := s.idempotency.Release(ctx, key); releaseErr != nil {
			s.warn(ctx, "idempotency reservation not released", operation, releaseErr)
		}
		return zero, err
	}
	if body, marshalErr := json.Marshal(out); marshalErr == nil {
		_ = s.idempotency.Complete(ctx, key, 200, body, s.nowFn())
	}
	return out, nil
}

func scopedIdempotencyKey(subject, operation, key string) string {
	return strings.TrimSpace(subject) + ":" + operation + ":" + key
}

func hashJSON(v any) string {
	b, _ := json.Marshal(v)
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}
