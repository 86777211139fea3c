package domain

import (
	"fmt"
	"math/big"
	"strings"
	"time"
)

type Tier string

const (
	TierBasic    Tier = "BASIC"
	TierVerified Tier = "VERIFIED"
	TierPremium  Tier = "PREMIUM"
	TierElite    Tier = "ELITE"
)

// TierSpec describes one staking bracket. Threshold is in whole tokens.
type TierSpec struct {
	Tier            Tier
	ThresholdTokens int64
	LockDays        int
	MultiplierPct   int64
	SlashablePct    int64
}

// Threshold returns the tier threshold in token base units.
func (s TierSpec) Threshold() *big.Int { return Tokens(s.ThresholdTokens) }

func (s TierSpec) LockPeriod() time.Duration {
	return time.Duration(s.LockDays) * 24 * time.Hour
}

// tierTable is ordered from lowest to highest threshold.
var tierTable = []TierSpec{
	{Tier: TierBasic, ThresholdTokens: 1_000, LockDays: 30, MultiplierPct: 110, SlashablePct: 10},
	{Tier: TierVerified, ThresholdTokens: 5_000, LockDays: 90, MultiplierPct: 125, SlashablePct: 20},
	{Tier: TierPremium, ThresholdTokens: 25_000, LockDays: 180, MultiplierPct: 150, SlashablePct: 30},
	{Tier: TierElite, ThresholdTokens: 100_000, LockDays: 365, MultiplierPct: 200, SlashablePct: 40},
}

// BaseMultiplierPct is reported for accounts below the lowest threshold.
const BaseMultiplierPct int64 = 100

func Tiers() []TierSpec {
	out := make([]TierSpec, len(tierTable))
	copy(out, tierTable)
	return out
}

func TierSpecFor(t Tier) (TierSpec, bool) {
	for _, spec := range tierTable {
		if spec.Tier == t {
			return spec, true
		}
	}
	return TierSpec{}, false
}

func ParseTier(raw string) (Tier, error) {
	t := Tier(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := TierSpecFor(t); !ok {
		return "", fmt.Errorf("%w: unknown tier %q", ErrInvalidInput, raw)
	}
	return t, nil
}

// Rank orders tiers BASIC < VERIFIED < PREMIUM < ELITE. Unknown tiers rank 0.
func (t Tier) Rank() int {
	for i, spec := range tierTable {
		if spec.Tier == t {
			return i + 1
		}
	}
	return 0
}

func (t Tier) AtLeast(other Tier) bool { return t.Rank() >= other.Rank() }

// Score is the economic-trust weight of a tier.
func (t Tier) Score() float64 {
	switch t {
	case TierElite:
		return 1.0
	case TierPremium:
		return 0.75
	case TierVerified:
		return 0.5
	case TierBasic:
		return 0.25
	default:
		return 0
	}
}

// MatchBonus is added to a candidate's match score during campaign matching.
func (t Tier) MatchBonus() float64 {
	switch t {
	case TierElite:
		return 0.3
	case TierPremium:
		return 0.2
	case TierVerified:
		return 0.1
	default:
		return 0
	}
}

// TierForStake returns the highest bracket whose threshold total meets. When
// total is below every threshold it returns BASIC with qualified=false.
func TierForStake(total *big.Int) (spec TierSpec, qualified bool) {
	spec = tierTable[0]
	for _, candidate := range tierTable {
		if total != nil && total.Cmp(candidate.Threshold()) >= 0 {
			spec = candidate
			qualified = true
		}
	}
	return spec, qualified
}

type StakeAccount struct {
	Owner                string
	TotalStaked          *big.Int
	Tier                 Tier
	Qualified            bool
	LockedUntil          time.Time
	ReputationMultiplier int64
	SlashableAmount      *big.Int
	SlashedTotal         *big.Int
	Version              int64
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func NewStakeAccount(owner string, now time.Time) StakeAccount {
	acc := StakeAccount{
		Owner:        owner,
		TotalStaked:  new(big.Int),
		SlashedTotal: new(big.Int),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	acc.Recompute()
	return acc
}

// Clone returns a deep copy so callers never share big.Int storage.
func (a StakeAccount) Clone() StakeAccount {
	out := a
	out.TotalStaked = cloneInt(a.TotalStaked)
	out.SlashableAmount = cloneInt(a.SlashableAmount)
	out.SlashedTotal = cloneInt(a.SlashedTotal)
	return out
}

// Recompute derives tier, multiplier and slashable exposure from TotalStaked.
func (a *StakeAccount) Recompute() {
	if a.TotalStaked == nil {
		a.TotalStaked = new(big.Int)
	}
	spec, qualified := TierForStake(a.TotalStaked)
	a.Tier = spec.Tier
	a.Qualified = qualified
	a.ReputationMultiplier = spec.MultiplierPct
	if !qualified {
		a.ReputationMultiplier = BaseMultiplierPct
	}
	a.SlashableAmount = percentOf(a.TotalStaked, spec.SlashablePct)
}

// ApplyStake adds amount to the account. A target tier only guards the call.
func (a *StakeAccount) ApplyStake(amount *big.Int, target Tier, now time.Time) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: stake amount must be positive", ErrInvalidInput)
	}
	newTotal := new(big.Int).Add(cloneInt(a.TotalStaked), amount)
	if target != "" {
		spec, ok := TierSpecFor(target)
		if !ok {
			return fmt.Errorf("%w: unknown tier %q", ErrInvalidInput, target)
		}
		if newTotal.Cmp(spec.Threshold()) < 0 {
			return fmt.Errorf("%w: %s requires %s tokens", ErrInsufficientStake, target, FormatTokens(spec.Threshold()))
		}
	}
	a.TotalStaked = newTotal
	a.Recompute()
	spec, _ := TierSpecFor(a.Tier)
	lockedUntil := now.Add(spec.LockPeriod())
	if lockedUntil.After(a.LockedUntil) {
		a.LockedUntil = lockedUntil
	}
	a.UpdatedAt = now
	return nil
}

func (a *StakeAccount) ApplyUnstake(amount *big.Int, now time.Time) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: unstake amount must be positive", ErrInvalidInput)
	}
	if now.Before(a.LockedUntil) {
		return fmt.Errorf("%w: locked until %s", ErrLockPeriodActive, a.LockedUntil.Format(time.RFC3339))
	}
	if amount.Cmp(cloneInt(a.TotalStaked)) > 0 {
		return fmt.Errorf("%w: cannot unstake %s of %s", ErrInsufficientStake, FormatTokens(amount), FormatTokens(a.TotalStaked))
	}
	a.TotalStaked = new(big.Int).Sub(a.TotalStaked, amount)
	a.Recompute()
	a.UpdatedAt = now
	return nil
}

// SlashAmount is the penalty the condition would take from the current stake.
func (a StakeAccount) SlashAmount(cond SlashCondition) *big.Int {
	return percentOf(a.TotalStaked, cond.SlashPct)
}

func (a *StakeAccount) ApplySlash(slashed *big.Int, now time.Time) {
	a.TotalStaked = new(big.Int).Sub(cloneInt(a.TotalStaked), slashed)
	if a.TotalStaked.Sign() < 0 {
		a.TotalStaked.SetInt64(0)
	}
	a.SlashedTotal = new(big.Int).Add(cloneInt(a.SlashedTotal), slashed)
	a.Recompute()
	a.UpdatedAt = now
}

// Meets reports whether the account holds at least the required tier.
func (a StakeAccount) Meets(required Tier) bool {
	return a.Qualified && a.Tier.AtLeast(required)
}

type SlashKind string

const (
	SlashFakeEngagement SlashKind = "Fake_Engagement"
	SlashSybilIdentity  SlashKind = "Sybil_Identity"
	SlashCampaignFraud  SlashKind = "Campaign_Fraud"
	SlashPlatformAbuse  SlashKind = "Platform_Abuse"
)

type SlashCondition struct {
	Kind                SlashKind
	SlashPct            int64
	EvidenceThreshold   int
	RequiresArbitration bool
}

var slashCatalogue = map[SlashKind]SlashCondition{
	SlashFakeEngagement: {Kind: SlashFakeEngagement, SlashPct: 25, EvidenceThreshold: 3, RequiresArbitration: false},
	SlashSybilIdentity:  {Kind: SlashSybilIdentity, SlashPct: 50, EvidenceThreshold: 1, RequiresArbitration: true},
	SlashCampaignFraud:  {Kind: SlashCampaignFraud, SlashPct: 75, EvidenceThreshold: 2, RequiresArbitration: true},
	SlashPlatformAbuse:  {Kind: SlashPlatformAbuse, SlashPct: 100, EvidenceThreshold: 5, RequiresArbitration: true},
}

func LookupSlashCondition(kind SlashKind) (SlashCondition, error) {
	cond, ok := slashCatalogue[kind]
	if !ok {
		return SlashCondition{}, fmt.Errorf("%w: %q", ErrUnknownSlashKind, kind)
	}
	return cond, nil
}

// Authorize checks the evidence count first, then the arbitration gate.
func (c SlashCondition) Authorize(evidence []string, isArbitrator bool) error {
	count := 0
	for _, item := range evidence {
		if strings.TrimSpace(item) != "" {
			count++
		}
	}
	if count < c.EvidenceThreshold {
		return fmt.Errorf("%w: %s needs %d evidence items, got %d", ErrEvidenceThreshold, c.Kind, c.EvidenceThreshold, count)
	}
	if c.RequiresArbitration && !isArbitrator {
		return fmt.Errorf("%w: %s", ErrArbitrationRequired, c.Kind)
	}
	return nil
}

const (
	StakeEventStake   = "stake"
	StakeEventUnstake = "unstake"
	StakeEventSlash   = "slash"
)

// StakeEvent is an append-only history row for one account mutation.
type StakeEvent struct {
	EventID    string
	Owner      string
	Kind       string
	Amount     *big.Int
	TotalAfter *big.Int
	Tier       Tier
	Reason     string
	TxHash     string
	OccurredAt time.Time
}

func percentOf(v *big.Int, pct int64) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	out := new(big.Int).Mul(v, big.NewInt(pct))
	return out.Quo(out, big.NewInt(100))
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
