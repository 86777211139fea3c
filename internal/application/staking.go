package application

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/contracts"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
)

func (s *Service) Stake(ctx context.Context, actor Actor, input StakeInput) (StakeResult, error) {
	input.Owner = ownerOrSubject(input.Owner, actor)
	if err := requireSelfOrPrivileged(actor, input.Owner); err != nil {
		return StakeResult{}, err
	}
	if err := domain.ValidateOwner(input.Owner); err != nil {
		return StakeResult{}, err
	}
	if input.Amount == nil || input.Amount.Sign() <= 0 {
		return StakeResult{}, fmt.Errorf("%w: stake amount must be positive", domain.ErrInvalidInput)
	}
	return idempotent(ctx, s, actor, "stake", input, func() (StakeResult, error) {
		unlock := s.locks.Lock(stakeLockKey(input.Owner))
		defer unlock()

		acc, exists, err := s.loadStake(ctx, input.Owner)
		if err != nil {
			return StakeResult{}, err
		}
		now := s.nowFn()
		next := acc.Clone()
		if err := next.ApplyStake(input.Amount, input.TargetTier, now); err != nil {
			return StakeResult{}, err
		}

		callCtx, cancel := s.withExternalTimeout(ctx)
		receipt, err := s.ledger.LockStake(callCtx, input.Owner, input.Amount)
		cancel()
		if err != nil {
			return StakeResult{}, externalFailure("lock stake", err)
		}
		if err := s.persistStake(ctx, next, exists); err != nil {
			s.logError(ctx, "stake persisted on ledger but not locally", "stake", err, "owner", input.Owner, "tx_hash", receipt.TxHash)
			return StakeResult{}, err
		}
		s.recordStakeEvent(ctx, next, domain.StakeEventStake, input.Amount, "", receipt.TxHash)
		s.invalidateScore(ctx, input.Owner)
		s.enqueueStakeUpdated(ctx, next, domain.StakeEventStake, input.Amount.String(), receipt.TxHash, actor.RequestID)

		return StakeResult{
			Owner:                next.Owner,
			Tier:                 next.Tier,
			Qualified:            next.Qualified,
			TotalStaked:          next.TotalStaked,
			LockedUntil:          next.LockedUntil,
			ReputationMultiplier: next.ReputationMultiplier,
			SlashableAmount:      next.SlashableAmount,
			TxHash:               receipt.TxHash,
		}, nil
	})
}

func (s *Service) Unstake(ctx context.Context, actor Actor, input UnstakeInput) (UnstakeResult, error) {
	input.Owner = ownerOrSubject(input.Owner, actor)
	if err := requireSelfOrPrivileged(actor, input.Owner); err != nil {
		return UnstakeResult{}, err
	}
	if input.Amount == nil || input.Amount.Sign() <= 0 {
		return UnstakeResult{}, fmt.Errorf("%w: unstake amount must be positive", domain.ErrInvalidInput)
	}
	return idempotent(ctx, s, actor, "unstake", input, func() (UnstakeResult, error) {
		unlock := s.locks.Lock(stakeLockKey(input.Owner))
		defer unlock()

		acc, exists, err := s.loadStake(ctx, input.Owner)
		if err != nil {
			return UnstakeResult{}, err
		}
		if !exists {
			return UnstakeResult{}, fmt.Errorf("%w: no stake for %s", domain.ErrInsufficientStake, input.Owner)
		}
		now := s.nowFn()
		next := acc.Clone()
		if err := next.ApplyUnstake(input.Amount, now); err != nil {
			return UnstakeResult{}, err
		}

		callCtx, cancel := s.withExternalTimeout(ctx)
		receipt, err := s.ledger.ReleaseStake(callCtx, input.Owner, input.Amount)
		cancel()
		if err != nil {
			return UnstakeResult{}, externalFailure("release stake", err)
		}
		if err := s.persistStake(ctx, next, true); err != nil {
			s.logError(ctx, "unstake released on ledger but not locally", "unstake", err, "owner", input.Owner, "tx_hash", receipt.TxHash)
			return UnstakeResult{}, err
		}
		s.recordStakeEvent(ctx, next, domain.StakeEventUnstake, input.Amount, "", receipt.TxHash)
		s.invalidateScore(ctx, input.Owner)
		s.enqueueStakeUpdated(ctx, next, domain.StakeEventUnstake, input.Amount.String(), receipt.TxHash, actor.RequestID)

		return UnstakeResult{
			Owner:          next.Owner,
			RemainingStake: next.TotalStaked,
			NewTier:        next.Tier,
			Qualified:      next.Qualified,
			TxHash:         receipt.TxHash,
		}, nil
	})
}

// GetStake returns the account for owner or domain.ErrNotFound when the owner
// has never staked.
func (s *Service) GetStake(ctx context.Context, owner string) (domain.StakeAccount, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return domain.StakeAccount{}, domain.ErrInvalidInput
	}
	return s.stakes.GetByOwner(ctx, owner)
}

func (s *Service) StakeHistory(ctx context.Context, owner string) ([]domain.StakeEvent, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, domain.ErrInvalidInput
	}
	return s.stakes.ListEvents(ctx, owner)
}

func (s *Service) ExecuteSlash(ctx context.Context, actor Actor, input SlashInput) (SlashResult, error) {
	if err := requireActor(actor); err != nil {
		return SlashResult{}, err
	}
	input.Owner = strings.TrimSpace(input.Owner)
	if input.Owner == "" {
		return SlashResult{}, fmt.Errorf("%w: owner is required", domain.ErrInvalidInput)
	}
	cond, err := domain.LookupSlashCondition(input.Condition)
	if err != nil {
		return SlashResult{}, err
	}
	if err := cond.Authorize(input.Evidence, input.IsArbitrator); err != nil {
		return SlashResult{}, err
	}
	// Evidence-only conditions still need a reviewing role.
	if !cond.RequiresArbitration && !actor.IsVerifier() && !actor.IsArbitrator() {
		return SlashResult{}, fmt.Errorf("%w: %s slashes need a verifier or arbitrator", domain.ErrForbidden, cond.Kind)
	}
	return idempotent(ctx, s, actor, "execute_slash", input, func() (SlashResult, error) {
		return s.slashStake(ctx, input.Owner, cond, input.Evidence, actor.RequestID)
	})
}

// slashStake runs under the owner's stake lock so campaign settlement and
// direct slashes of the same account never interleave.
func (s *Service) slashStake(ctx context.Context, owner string, cond domain.SlashCondition, evidence []string, traceID string) (SlashResult, error) {
	unlock := s.locks.Lock(stakeLockKey(owner))
	defer unlock()

	acc, exists, err := s.loadStake(ctx, owner)
	if err != nil {
		return SlashResult{}, err
	}
	if !exists {
		return SlashResult{}, fmt.Errorf("%w: no stake for %s", domain.ErrInsufficientStake, owner)
	}
	now := s.nowFn()
	slashed := acc.SlashAmount(cond)
	next := acc.Clone()
	next.ApplySlash(slashed, now)

	var txHash string
	if slashed.Sign() > 0 {
		callCtx, cancel := s.withExternalTimeout(ctx)
		receipt, err := s.ledger.BurnStake(callCtx, owner, slashed, string(cond.Kind))
		cancel()
		if err != nil {
			return SlashResult{}, externalFailure("burn stake", err)
		}
		txHash = receipt.TxHash
	}
	if err := s.persistStake(ctx, next, true); err != nil {
		s.logError(ctx, "slash burned on ledger but not locally", "execute_slash", err, "owner", owner, "tx_hash", txHash)
		return SlashResult{}, err
	}
	s.recordStakeEvent(ctx, next, domain.StakeEventSlash, slashed, string(cond.Kind), txHash)
	s.invalidateScore(ctx, owner)
	s.enqueueAfterCommit(ctx, domain.EventStakeSlashed, traceID, owner, contracts.StakeSlashedPayload{
		Owner:          owner,
		Condition:      string(cond.Kind),
		SlashedAmount:  slashed.String(),
		RemainingStake: next.TotalStaked.String(),
		EvidenceCount:  len(evidence),
		TxHash:         txHash,
	}, now)

	return SlashResult{
		Owner:          owner,
		Condition:      cond.Kind,
		SlashedAmount:  slashed,
		RemainingStake: next.TotalStaked,
		NewTier:        next.Tier,
		TxHash:         txHash,
	}, nil
}

func (s *Service) VerifyStakingRequirements(ctx context.Context, owner string, required domain.Tier) (bool, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return false, domain.ErrInvalidInput
	}
	if _, ok := domain.TierSpecFor(required); !ok {
		return false, fmt.Errorf("%w: unknown tier %q", domain.ErrInvalidInput, required)
	}
	acc, _, err := s.loadStake(ctx, owner)
	if err != nil {
		return false, err
	}
	return acc.Meets(required), nil
}

// loadStake returns the stored account, or a fresh zero account when the
// owner has never staked.
func (s *Service) loadStake(ctx context.Context, owner string) (domain.StakeAccount, bool, error) {
	acc, err := s.stakes.GetByOwner(ctx, owner)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NewStakeAccount(owner, s.nowFn()), false, nil
		}
		return domain.StakeAccount{}, false, err
	}
	return acc, true, nil
}

func (s *Service) persistStake(ctx context.Context, acc domain.StakeAccount, exists bool) error {
	if !exists {
		return s.stakes.Create(ctx, acc)
	}
	return s.stakes.Update(ctx, acc)
}

func (s *Service) recordStakeEvent(ctx context.Context, acc domain.StakeAccount, kind string, amount *big.Int, reason, txHash string) {
	err := s.stakes.AppendEvent(ctx, domain.StakeEvent{
		EventID:    uuid.NewString(),
		Owner:      acc.Owner,
		Kind:       kind,
		Amount:     new(big.Int).Set(amount),
		TotalAfter: new(big.Int).Set(acc.TotalStaked),
		Tier:       acc.Tier,
		Reason:     reason,
		TxHash:     txHash,
		OccurredAt: acc.UpdatedAt,
	})
	if err != nil {
		s.warn(ctx, "stake history append failed", "record_stake_event", err, "owner", acc.Owner, "kind", kind)
	}
}

func ownerOrSubject(owner string, actor Actor) string {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return strings.TrimSpace(actor.SubjectID)
	}
	return owner
}
