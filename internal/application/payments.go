package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/ports"
)

func (s *Service) CreatePaymentRequest(ctx context.Context, actor Actor, input CreatePaymentInput) (domain.Payment, error) {
	input.From = ownerOrSubject(input.From, actor)
	if err := requireSelfOrPrivileged(actor, input.From); err != nil {
		return domain.Payment{}, err
	}
	if err := validatePaymentInput(input); err != nil {
		return domain.Payment{}, err
	}
	return idempotent(ctx, s, actor, "create_payment_request", input, func() (domain.Payment, error) {
		return s.createPayment(ctx, input, domain.PaymentStatusPending)
	})
}

func (s *Service) createPayment(ctx context.Context, input CreatePaymentInput, status domain.PaymentStatus) (domain.Payment, error) {
	now := s.nowFn()
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	payment := domain.Payment{
		ID:           uuid.NewString(),
		From:         strings.TrimSpace(input.From),
		To:           strings.TrimSpace(input.To),
		Amount:       input.Amount,
		Currency:     currency,
		ResourceHash: strings.TrimSpace(input.Resource),
		Conditions:   input.Conditions,
		Status:       status,
		Timestamp:    now,
		Metadata:     input.Metadata,
		UpdatedAt:    now,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return domain.Payment{}, err
	}
	payment.Version = 1
	return payment, nil
}

func (s *Service) InitiateDiscoveryPayment(ctx context.Context, actor Actor, input DiscoveryInput) (DiscoveryFlow, error) {
	input.Brand = ownerOrSubject(input.Brand, actor)
	if err := requireSelfOrPrivileged(actor, input.Brand); err != nil {
		return DiscoveryFlow{}, err
	}
	if input.CampaignBudget <= 0 {
		return DiscoveryFlow{}, fmt.Errorf("%w: campaign budget must be positive", domain.ErrInvalidInput)
	}
	if input.CampaignBudget > s.cfg.MaxCampaignBudget {
		return DiscoveryFlow{}, fmt.Errorf("%w: %s exceeds %s", domain.ErrBudgetExceeded, input.CampaignBudget, s.cfg.MaxCampaignBudget)
	}
	return idempotent(ctx, s, actor, "initiate_discovery_payment", input, func() (DiscoveryFlow, error) {
		now := s.nowFn()
		expiry := now.Add(domain.DiscoveryExpiry)
		resource := "discovery:" + input.Brand
		if input.CampaignID != "" {
			resource = "discovery:" + input.CampaignID
		}
		payment, err := s.createPayment(ctx, CreatePaymentInput{
			From:     input.Brand,
			To:       s.cfg.TreasuryAccount,
			Amount:   input.CampaignBudget.Percent(domain.DiscoveryBudgetPct),
			Resource: resource,
			Conditions: &domain.PaymentConditions{
				Stage:            domain.PaymentStageDiscovery,
				Expiry:           &expiry,
				MaxResults:       domain.DiscoveryMaxResults,
				QualityThreshold: domain.DiscoveryQualityThreshold,
				CampaignID:       input.CampaignID,
			},
			Metadata: map[string]string{"campaign_budget": input.CampaignBudget.String()},
		}, domain.PaymentStatusPending)
		if err != nil {
			return DiscoveryFlow{}, err
		}
		return DiscoveryFlow{
			Payment:          payment,
			MaxResults:       domain.DiscoveryMaxResults,
			QualityThreshold: domain.DiscoveryQualityThreshold,
			ExpiresAt:        expiry,
		}, nil
	})
}

func (s *Service) InitiateVerificationPayment(ctx context.Context, actor Actor, input VerificationInput) (domain.Payment, error) {
	input.Payer = ownerOrSubject(input.Payer, actor)
	if err := requireSelfOrPrivileged(actor, input.Payer); err != nil {
		return domain.Payment{}, err
	}
	cost, err := domain.VerificationCost(input.Kind)
	if err != nil {
		return domain.Payment{}, err
	}
	subject := strings.TrimSpace(input.Subject)
	if subject == "" {
		subject = input.Payer
	}
	return idempotent(ctx, s, actor, "initiate_verification_payment", input, func() (domain.Payment, error) {
		return s.createPayment(ctx, CreatePaymentInput{
			From:     input.Payer,
			To:       s.cfg.TreasuryAccount,
			Amount:   cost,
			Resource: "verification:" + input.Kind + ":" + subject,
			Conditions: &domain.PaymentConditions{
				Stage:            domain.PaymentStageVerification,
				VerificationKind: input.Kind,
			},
		}, domain.PaymentStatusPending)
	})
}

// ReleaseSuccessPayment pays base compensation plus performance bonuses and
// marks the payment COMPLETED immediately. The metrics are taken as reported;
// nothing here verifies them independently.
func (s *Service) ReleaseSuccessPayment(ctx context.Context, actor Actor, input SuccessPaymentInput) (domain.Payment, error) {
	if err := requireActor(actor); err != nil {
		return domain.Payment{}, err
	}
	input.CampaignID = strings.TrimSpace(input.CampaignID)
	input.Payee = strings.TrimSpace(input.Payee)
	if input.CampaignID == "" || input.Payee == "" || input.BaseCompensation < 0 {
		return domain.Payment{}, fmt.Errorf("%w: campaign, payee and non-negative compensation required", domain.ErrInvalidInput)
	}
	payer := strings.TrimSpace(input.Payer)
	if payer == "" {
		payer = "campaign:" + input.CampaignID
	}
	return idempotent(ctx, s, actor, "release_success_payment", input, func() (domain.Payment, error) {
		bonus := domain.SuccessBonus(input.Metrics)
		payment, err := s.createPayment(ctx, CreatePaymentInput{
			From:       payer,
			To:         input.Payee,
			Amount:     input.BaseCompensation + bonus,
			Resource:   "success:" + input.CampaignID,
			Conditions: &domain.PaymentConditions{Stage: domain.PaymentStageSuccess, CampaignID: input.CampaignID},
			Metadata: map[string]string{
				"base_compensation": input.BaseCompensation.String(),
				"bonus":             bonus.String(),
			},
		}, domain.PaymentStatusCompleted)
		if err != nil {
			return domain.Payment{}, err
		}
		if _, err := s.balances.Adjust(ctx, payment.To, payment.Amount, payment.Timestamp); err != nil {
			return domain.Payment{}, err
		}
		s.invalidateScore(ctx, payment.To)
		s.enqueuePaymentEvent(ctx, domain.EventPaymentCompleted, payment, actor.RequestID)
		return payment, nil
	})
}

// CompletePayment settles a PENDING payment. An expired payment is marked
// FAILED and reported as domain.ErrPaymentExpired without moving funds.
func (s *Service) CompletePayment(ctx context.Context, actor Actor, input CompletePaymentInput) (domain.Payment, error) {
	if err := requireActor(actor); err != nil {
		return domain.Payment{}, err
	}
	input.PaymentID = strings.TrimSpace(input.PaymentID)
	if input.PaymentID == "" {
		return domain.Payment{}, fmt.Errorf("%w: payment id is required", domain.ErrInvalidInput)
	}
	return idempotent(ctx, s, actor, "complete_payment", input, func() (domain.Payment, error) {
		unlock := s.locks.Lock(paymentLockKey(input.PaymentID))
		defer unlock()

		payment, err := s.payments.GetByID(ctx, input.PaymentID)
		if err != nil {
			return domain.Payment{}, err
		}
		if !actor.privileged() && actor.SubjectID != payment.From {
			return domain.Payment{}, fmt.Errorf("%w: only the payer completes payment %s", domain.ErrForbidden, payment.ID)
		}
		if payment.Status != domain.PaymentStatusPending {
			return domain.Payment{}, fmt.Errorf("%w: payment %s is %s", domain.ErrInvalidTransition, payment.ID, payment.Status)
		}
		now := s.nowFn()
		if payment.Expired(now) {
			if err := payment.Transition(domain.PaymentStatusFailed, now); err != nil {
				return domain.Payment{}, err
			}
			payment.Reason = "expired"
			if err := s.payments.Update(ctx, payment); err != nil {
				return domain.Payment{}, err
			}
			payment.Version++
			s.enqueuePaymentEvent(ctx, domain.EventPaymentFailed, payment, actor.RequestID)
			return domain.Payment{}, fmt.Errorf("%w: payment %s expired at %s", domain.ErrPaymentExpired, payment.ID, payment.Conditions.Expiry.Format(time.RFC3339))
		}
		var settlement ports.SettlementResult
		if input.Proof != nil {
			if err := domain.ValidatePaymentProof(payment.Expectation(), *input.Proof, now, s.cfg.ProofMaxAge); err != nil {
				return domain.Payment{}, err
			}
			settlement, err = s.verifySettlement(ctx, payment, *input.Proof)
			if err != nil {
				return domain.Payment{}, err
			}
		}
		if err := payment.Transition(domain.PaymentStatusCompleted, now); err != nil {
			return domain.Payment{}, err
		}
		payment.TxHash = settlement.TxHash
		if err := s.payments.Update(ctx, payment); err != nil {
			return domain.Payment{}, err
		}
		payment.Version++
		if _, err := s.balances.Adjust(ctx, payment.To, payment.Amount, now); err != nil {
			s.logError(ctx, "payment completed but balance credit failed", "complete_payment", err, "payment_id", payment.ID)
			return domain.Payment{}, err
		}
		s.invalidateScore(ctx, payment.From)
		s.invalidateScore(ctx, payment.To)
		s.enqueuePaymentEvent(ctx, domain.EventPaymentCompleted, payment, actor.RequestID)
		s.publishAudit(ctx, ports.AuditRecord{
			Kind:      "payment_evidence",
			SubjectID: payment.From,
			Reference: payment.ID,
			Payload: map[string]any{
				"recipient":         payment.To,
				"amount":            payment.Amount.String(),
				"currency":          payment.Currency,
				"resource":          payment.ResourceHash,
				"tx_hash":           payment.TxHash,
				"settlement_method": settlement.Method,
			},
			OccurredAt: now,
		})
		return payment, nil
	})
}

func (s *Service) verifySettlement(ctx context.Context, payment domain.Payment, proof domain.PaymentProof) (ports.SettlementResult, error) {
	if s.facilitator == nil {
		return ports.SettlementResult{}, externalFailure("verify settlement", errors.New("no facilitator configured"))
	}
	callCtx, cancel := s.withExternalTimeout(ctx)
	defer cancel()
	result, err := s.facilitator.VerifySettlement(callCtx, payment, proof)
	if err != nil {
		return ports.SettlementResult{}, externalFailure("verify settlement", err)
	}
	if !result.Verified {
		return ports.SettlementResult{}, externalFailure("verify settlement", errors.New("settlement not verified"))
	}
	return result, nil
}

// RefundPayment refunds a PENDING or COMPLETED payment. A COMPLETED payment
// debits the recipient's balance first.
func (s *Service) RefundPayment(ctx context.Context, actor Actor, input RefundPaymentInput) (domain.Payment, error) {
	if err := requireActor(actor); err != nil {
		return domain.Payment{}, err
	}
	input.PaymentID = strings.TrimSpace(input.PaymentID)
	if input.PaymentID == "" {
		return domain.Payment{}, fmt.Errorf("%w: payment id is required", domain.ErrInvalidInput)
	}
	return idempotent(ctx, s, actor, "refund_payment", input, func() (domain.Payment, error) {
		unlock := s.locks.Lock(paymentLockKey(input.PaymentID))
		defer unlock()

		payment, err := s.payments.GetByID(ctx, input.PaymentID)
		if err != nil {
			return domain.Payment{}, err
		}
		wasCompleted := payment.Status == domain.PaymentStatusCompleted
		if !canRefund(actor, payment, wasCompleted) {
			return domain.Payment{}, fmt.Errorf("%w: %s cannot refund payment %s", domain.ErrForbidden, actor.SubjectID, payment.ID)
		}
		now := s.nowFn()
		if err := payment.Transition(domain.PaymentStatusRefunded, now); err != nil {
			return domain.Payment{}, err
		}
		payment.Reason = strings.TrimSpace(input.Reason)
		if err := s.payments.Update(ctx, payment); err != nil {
			return domain.Payment{}, err
		}
		payment.Version++
		if wasCompleted {
			if _, err := s.balances.Adjust(ctx, payment.To, -payment.Amount, now); err != nil {
				s.logError(ctx, "payment refunded but balance debit failed", "refund_payment", err, "payment_id", payment.ID)
				return domain.Payment{}, err
			}
		}
		s.invalidateScore(ctx, payment.From)
		s.invalidateScore(ctx, payment.To)
		s.enqueuePaymentEvent(ctx, domain.EventPaymentRefunded, payment, actor.RequestID)
		return payment, nil
	})
}

// canRefund lets the recipient return funds they hold. A payer may only
// withdraw a request that has not settled yet.
func canRefund(actor Actor, payment domain.Payment, completed bool) bool {
	switch {
	case actor.privileged(), actor.SubjectID == payment.To:
		return true
	case actor.SubjectID == payment.From:
		return !completed
	default:
		return false
	}
}

func (s *Service) DisputePayment(ctx context.Context, actor Actor, input DisputePaymentInput) (domain.Payment, error) {
	if err := requireActor(actor); err != nil {
		return domain.Payment{}, err
	}
	input.PaymentID = strings.TrimSpace(input.PaymentID)
	if input.PaymentID == "" || strings.TrimSpace(input.Reason) == "" {
		return domain.Payment{}, fmt.Errorf("%w: payment id and reason are required", domain.ErrInvalidInput)
	}
	return idempotent(ctx, s, actor, "dispute_payment", input, func() (domain.Payment, error) {
		unlock := s.locks.Lock(paymentLockKey(input.PaymentID))
		defer unlock()

		payment, err := s.payments.GetByID(ctx, input.PaymentID)
		if err != nil {
			return domain.Payment{}, err
		}
		if !actor.privileged() && actor.SubjectID != payment.From && actor.SubjectID != payment.To {
			return domain.Payment{}, domain.ErrForbidden
		}
		if err := payment.Transition(domain.PaymentStatusDisputed, s.nowFn()); err != nil {
			return domain.Payment{}, err
		}
		payment.Reason = strings.TrimSpace(input.Reason)
		if err := s.payments.Update(ctx, payment); err != nil {
			return domain.Payment{}, err
		}
		payment.Version++
		s.invalidateScore(ctx, payment.From)
		s.invalidateScore(ctx, payment.To)
		return payment, nil
	})
}

func (s *Service) GetPayment(ctx context.Context, paymentID string) (domain.Payment, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return domain.Payment{}, domain.ErrInvalidInput
	}
	return s.payments.GetByID(ctx, paymentID)
}

func (s *Service) GetPaymentStatistics(ctx context.Context, user string) (domain.PaymentStatistics, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		return domain.PaymentStatistics{}, domain.ErrInvalidInput
	}
	history, err := s.payments.ListByUser(ctx, user)
	if err != nil {
		return domain.PaymentStatistics{}, err
	}
	return domain.ComputePaymentStatistics(user, history), nil
}

func (s *Service) GetBalance(ctx context.Context, user string) (domain.Amount, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		return 0, domain.ErrInvalidInput
	}
	return s.balances.Get(ctx, user)
}

// SetQueryPrice overrides the base premium query price for one resource.
func (s *Service) SetQueryPrice(ctx context.Context, actor Actor, resource string, price domain.Amount) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if actor.Role != RoleProvider && !actor.privileged() {
		return domain.ErrForbidden
	}
	resource = strings.TrimSpace(resource)
	if resource == "" || price <= 0 {
		return fmt.Errorf("%w: resource and positive price required", domain.ErrInvalidInput)
	}
	return s.queries.SetPrice(ctx, resource, price)
}

func (s *Service) QueryPrice(ctx context.Context, resource string) (domain.Amount, error) {
	price, ok, err := s.queries.GetPrice(ctx, strings.TrimSpace(resource))
	if err != nil {
		return 0, err
	}
	if !ok {
		return s.cfg.BaseQueryPrice, nil
	}
	return price, nil
}

// PayForQuery transfers the resource price to the treasury and grants the
// payer access until now+duration.
func (s *Service) PayForQuery(ctx context.Context, actor Actor, input QueryAccessInput) (QueryAccessResult, error) {
	input.Payer = ownerOrSubject(input.Payer, actor)
	if err := requireSelfOrPrivileged(actor, input.Payer); err != nil {
		return QueryAccessResult{}, err
	}
	input.Resource = strings.TrimSpace(input.Resource)
	if input.Resource == "" || input.Duration < 0 {
		return QueryAccessResult{}, fmt.Errorf("%w: resource is required", domain.ErrInvalidInput)
	}
	if input.Duration == 0 {
		input.Duration = s.cfg.DefaultQueryAccess
	}
	return idempotent(ctx, s, actor, "pay_for_query", input, func() (QueryAccessResult, error) {
		unlock := s.locks.Lock(queryLockKey(input.Payer, input.Resource))
		defer unlock()

		price, err := s.QueryPrice(ctx, input.Resource)
		if err != nil {
			return QueryAccessResult{}, err
		}
		callCtx, cancel := s.withExternalTimeout(ctx)
		receipt, err := s.ledger.Transfer(callCtx, input.Payer, s.cfg.TreasuryAccount, price, "query:"+input.Resource)
		cancel()
		if err != nil {
			return QueryAccessResult{}, externalFailure("query payment transfer", err)
		}
		payment, err := s.createPayment(ctx, CreatePaymentInput{
			From:       input.Payer,
			To:         s.cfg.TreasuryAccount,
			Amount:     price,
			Resource:   input.Resource,
			Conditions: &domain.PaymentConditions{Stage: domain.PaymentStageQueryAccess},
			Metadata:   map[string]string{"tx_hash": receipt.TxHash},
		}, domain.PaymentStatusCompleted)
		if err != nil {
			return QueryAccessResult{}, err
		}
		if _, err := s.balances.Adjust(ctx, payment.To, payment.Amount, payment.Timestamp); err != nil {
			return QueryAccessResult{}, err
		}
		access := domain.QueryAccess{
			Payer:     input.Payer,
			Resource:  input.Resource,
			PaymentID: payment.ID,
			Price:     price,
			GrantedAt: payment.Timestamp,
			ExpiresAt: payment.Timestamp.Add(input.Duration),
		}
		if err := s.queries.Grant(ctx, access); err != nil {
			return QueryAccessResult{}, err
		}
		s.enqueuePaymentEvent(ctx, domain.EventPaymentCompleted, payment, actor.RequestID)
		return QueryAccessResult{Access: access, Payment: payment}, nil
	})
}

func (s *Service) HasQueryAccess(ctx context.Context, payer, resource string) (bool, error) {
	access, err := s.queries.Get(ctx, strings.TrimSpace(payer), strings.TrimSpace(resource))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return access.ActiveAt(s.nowFn()), nil
}

// VerifyAccessReceipt checks a published receipt's shape and, when its id
// resolves to a ledger payment, that the two agree.
func (s *Service) VerifyAccessReceipt(ctx context.Context, receipt domain.AccessReceipt) (ReceiptVerification, error) {
	out := ReceiptVerification{PaymentID: receipt.ID}
	if err := receipt.ValidateShape(); err != nil {
		out.Errors = append(out.Errors, err.Error())
		return out, nil
	}
	payment, err := s.payments.GetByID(ctx, strings.TrimSpace(receipt.ID))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			out.Valid = true
			return out, nil
		}
		return ReceiptVerification{}, err
	}
	amount, err := domain.ParseAmount(receipt.Amount)
	if err != nil {
		out.Errors = append(out.Errors, err.Error())
	}
	checks := map[string]bool{
		"payer":       payment.From == receipt.Payer,
		"recipient":   payment.To == receipt.Recipient,
		"amount":      err == nil && payment.Amount == amount,
		"token":       strings.EqualFold(payment.Currency, receipt.Token),
		"resourceUAL": payment.ResourceHash == receipt.ResourceUAL,
		"status":      payment.Status == domain.PaymentStatusCompleted,
	}
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !checks[name] {
			out.Errors = append(out.Errors, "receipt "+name+" does not match ledger payment")
		}
	}
	out.Valid = len(out.Errors) == 0
	return out, nil
}

func validatePaymentInput(input CreatePaymentInput) error {
	if strings.TrimSpace(input.From) == "" || strings.TrimSpace(input.To) == "" {
		return fmt.Errorf("%w: from and to are required", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(input.From) == strings.TrimSpace(input.To) {
		return fmt.Errorf("%w: payer and recipient must differ", domain.ErrInvalidInput)
	}
	if input.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(input.Resource) == "" {
		return fmt.Errorf("%w: resource is required", domain.ErrInvalidInput)
	}
	return nil
}
