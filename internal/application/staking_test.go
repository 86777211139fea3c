package application_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/application"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
)

func TestStakeDirectlyIntoVerified(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	res, err := f.svc.Stake(context.Background(), user("alice"), application.StakeInput{
		Amount:     domain.Tokens(5_000),
		TargetTier: domain.TierVerified,
	})
	if err != nil {
		t.Fatalf("stake: %v", err)
	}
	if res.Tier != domain.TierVerified || res.ReputationMultiplier != 125 || !res.Qualified {
		t.Fatalf("unexpected stake result %+v", res)
	}
	if want := startTime.Add(90 * 24 * time.Hour); !res.LockedUntil.Equal(want) {
		t.Fatalf("expected lock until %s, got %s", want, res.LockedUntil)
	}
	if res.TxHash == "" {
		t.Fatalf("expected ledger tx hash")
	}
	if !contains(f.outboxTypes(), domain.EventStakeUpdated) {
		t.Fatalf("expected %s in outbox, got %v", domain.EventStakeUpdated, f.outboxTypes())
	}
	history, err := f.svc.StakeHistory(context.Background(), "alice")
	if err != nil || len(history) != 1 || history[0].Kind != domain.StakeEventStake {
		t.Fatalf("unexpected history %+v (%v)", history, err)
	}
}

func TestStakeBelowBasicThreshold(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	res := f.stake(t, "alice", 500)
	if res.Tier != domain.TierBasic || res.ReputationMultiplier != 100 || res.Qualified {
		t.Fatalf("unexpected sub-threshold result %+v", res)
	}
	ok, err := f.svc.VerifyStakingRequirements(context.Background(), "alice", domain.TierBasic)
	if err != nil || ok {
		t.Fatalf("sub-threshold stake must not meet BASIC: ok=%v err=%v", ok, err)
	}
}

func TestStakeTargetTierNotReached(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.svc.Stake(context.Background(), user("alice"), application.StakeInput{Amount: domain.Tokens(2_000), TargetTier: domain.TierPremium})
	if !errors.Is(err, domain.ErrInsufficientStake) {
		t.Fatalf("expected ErrInsufficientStake, got %v", err)
	}
	if _, err := f.svc.GetStake(context.Background(), "alice"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("failed stake must not create an account, got %v", err)
	}
	if len(f.ledger.Movements()) != 0 {
		t.Fatalf("failed stake must not touch the ledger")
	}
}

func TestStakeForAnotherOwnerIsForbidden(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.svc.Stake(context.Background(), user("mallory"), application.StakeInput{Owner: "alice", Amount: domain.Tokens(1_000)})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := f.svc.Stake(context.Background(), role("ops", application.RoleAdmin), application.StakeInput{Owner: "alice", Amount: domain.Tokens(1_000)}); err != nil {
		t.Fatalf("admin stake on behalf: %v", err)
	}
}

func TestStakeLedgerFailureLeavesNoState(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.ledger.FailWith(errors.New("rpc unavailable"))
	_, err := f.svc.Stake(context.Background(), user("alice"), application.StakeInput{Amount: domain.Tokens(1_000)})
	if !errors.Is(err, domain.ErrExternalService) {
		t.Fatalf("expected ErrExternalService, got %v", err)
	}
	if _, err := f.svc.GetStake(context.Background(), "alice"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected no account after ledger failure, got %v", err)
	}
}

func TestUnstakeHonoursLockPeriod(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.stake(t, "alice", 5_000)

	_, err := f.svc.Unstake(context.Background(), user("alice"), application.UnstakeInput{Amount: domain.Tokens(1_000)})
	if !errors.Is(err, domain.ErrLockPeriodActive) {
		t.Fatalf("expected ErrLockPeriodActive, got %v", err)
	}

	f.clock.Advance(91 * 24 * time.Hour)
	_, err = f.svc.Unstake(context.Background(), user("alice"), application.UnstakeInput{Amount: domain.Tokens(6_000)})
	if !errors.Is(err, domain.ErrInsufficientStake) {
		t.Fatalf("expected ErrInsufficientStake, got %v", err)
	}
	res, err := f.svc.Unstake(context.Background(), user("alice"), application.UnstakeInput{Amount: domain.Tokens(1_000)})
	if err != nil {
		t.Fatalf("unstake: %v", err)
	}
	if res.NewTier != domain.TierBasic || res.RemainingStake.Cmp(domain.Tokens(4_000)) != 0 {
		t.Fatalf("unexpected unstake result %+v", res)
	}

	if _, err := f.svc.Unstake(context.Background(), user("bob"), application.UnstakeInput{Amount: domain.Tokens(1)}); !errors.Is(err, domain.ErrInsufficientStake) {
		t.Fatalf("expected ErrInsufficientStake for an owner without stake, got %v", err)
	}
}

func TestSybilSlashRequiresArbitration(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.stake(t, "alice", 10_000)

	_, err := f.svc.ExecuteSlash(context.Background(), user("reporter"), application.SlashInput{
		Owner:     "alice",
		Condition: domain.SlashSybilIdentity,
		Evidence:  []string{"evidence-1"},
	})
	if !errors.Is(err, domain.ErrArbitrationRequired) {
		t.Fatalf("expected ErrArbitrationRequired, got %v", err)
	}

	res, err := f.svc.ExecuteSlash(context.Background(), role("judge", application.RoleArbitrator), application.SlashInput{
		Owner:        "alice",
		Condition:    domain.SlashSybilIdentity,
		Evidence:     []string{"evidence-1"},
		IsArbitrator: true,
	})
	if err != nil {
		t.Fatalf("arbitrated slash: %v", err)
	}
	if res.SlashedAmount.Cmp(domain.Tokens(5_000)) != 0 || res.RemainingStake.Cmp(domain.Tokens(5_000)) != 0 {
		t.Fatalf("expected 50%% slash, got %+v", res)
	}
	if res.NewTier != domain.TierVerified {
		t.Fatalf("expected tier to drop to VERIFIED, got %s", res.NewTier)
	}
	if !contains(f.outboxTypes(), domain.EventStakeSlashed) {
		t.Fatalf("expected %s in outbox", domain.EventStakeSlashed)
	}
}

func TestSlashValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.stake(t, "alice", 1_000)

	_, err := f.svc.ExecuteSlash(context.Background(), user("reporter"), application.SlashInput{Owner: "alice", Condition: "Spam", Evidence: []string{"a"}})
	if !errors.Is(err, domain.ErrUnknownSlashKind) {
		t.Fatalf("expected ErrUnknownSlashKind, got %v", err)
	}
	_, err = f.svc.ExecuteSlash(context.Background(), user("reporter"), application.SlashInput{Owner: "alice", Condition: domain.SlashFakeEngagement, Evidence: []string{"a", "b"}})
	if !errors.Is(err, domain.ErrEvidenceThreshold) {
		t.Fatalf("expected ErrEvidenceThreshold, got %v", err)
	}
	enough := []string{"a", "b", "c"}
	_, err = f.svc.ExecuteSlash(context.Background(), user("reporter"), application.SlashInput{Owner: "alice", Condition: domain.SlashFakeEngagement, Evidence: enough})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for a plain user, got %v", err)
	}
	if acc, _ := f.svc.GetStake(context.Background(), "alice"); acc.TotalStaked.Cmp(domain.Tokens(1_000)) != 0 {
		t.Fatalf("rejected slash changed the stake: %s", domain.FormatTokens(acc.TotalStaked))
	}
	res, err := f.svc.ExecuteSlash(context.Background(), verifier(), application.SlashInput{Owner: "alice", Condition: domain.SlashFakeEngagement, Evidence: enough})
	if err != nil {
		t.Fatalf("fake engagement slash: %v", err)
	}
	if res.SlashedAmount.Cmp(domain.Tokens(250)) != 0 {
		t.Fatalf("expected 25%% slash, got %s", domain.FormatTokens(res.SlashedAmount))
	}
}

func TestConcurrentStakesAreSerialized(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Stake(context.Background(), user("alice"), application.StakeInput{Amount: domain.Tokens(100)})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent stake: %v", err)
		}
	}
	acc, err := f.svc.GetStake(context.Background(), "alice")
	if err != nil {
		t.Fatalf("get stake: %v", err)
	}
	if acc.TotalStaked.Cmp(domain.Tokens(2_000)) != 0 {
		t.Fatalf("expected 2000 tokens, got %s", domain.FormatTokens(acc.TotalStaked))
	}
	if acc.Tier != domain.TierBasic || !acc.Qualified {
		t.Fatalf("unexpected tier %s qualified=%v", acc.Tier, acc.Qualified)
	}
}
