// Package simulation implements the Simulation Battery (C6): running the
// same candidate call under a matrix of time offsets and actor identities
// to surface time-bomb, honeypot, and whitelist-gating behavior before any
// transaction reaches a real chain.
package simulation

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/evmsentinel/txfirewall/common"
	"github.com/evmsentinel/txfirewall/common/mathutil"
	"github.com/evmsentinel/txfirewall/tracer"
	"github.com/evmsentinel/txfirewall/vm"
)

// TimeOffsets is the canonical timestamp-offset family (spec.md 4.6):
// baseline plus four probes spanning an hour to a month, and one probe into
// the past to catch a lock that only looks one direction.
var TimeOffsets = []int64{0, 3600, 86400, 604800, 2592000, -86400}

// Actor identifies one identity the counterfactual family impersonates.
type Actor int

const (
	ActorCurrentUser Actor = iota
	ActorRandomUser
	ActorOwner
	ActorDeployer
	ActorWhitelisted
)

func (a Actor) String() string {
	switch a {
	case ActorCurrentUser:
		return "current_user"
	case ActorRandomUser:
		return "random_user"
	case ActorOwner:
		return "owner"
	case ActorDeployer:
		return "deployer"
	case ActorWhitelisted:
		return "whitelisted"
	default:
		return "unknown"
	}
}

// Harness is the subset of vm.Harness the battery depends on, so tests can
// supply a fake.
type Harness interface {
	Execute(ctx context.Context, cfg vm.RunConfig) (common.Outcome, error)
}

// ScenarioResult is one run's outcome tagged with what varied to produce it.
type ScenarioResult struct {
	Label   string
	Outcome common.Outcome
	Err     error
	Tracer  tracer.Result
}

func (s ScenarioResult) ran() bool { return s.Err == nil }

// TimeTravelEntry is one offset's comparison against the baseline, the
// Time-Travel Result of spec.md section 3.
type TimeTravelEntry struct {
	OffsetSeconds int64
	Description   string
	Outcome       common.Outcome
	Diverges      bool
}

// CounterfactualEntry is one actor's run, the Counterfactual Result of
// spec.md section 3.
type CounterfactualEntry struct {
	ActorRole Actor
	Address   common.Address
	Outcome   common.Outcome
}

// PrivilegeDiff flags one asymmetry between actors surfaced by the
// counterfactual family.
type PrivilegeDiff struct {
	Severity    string
	Description string
}

// Result aggregates every scenario run plus the derived signals the
// Feature Extractor and Verdict Assembler consume.
type Result struct {
	Baseline       ScenarioResult
	TimeTravel     []TimeTravelEntry
	Counterfactual []CounterfactualEntry
	PrivilegeDiffs []PrivilegeDiff

	Flags []string

	DivergingOffsets  int
	TimeFlagCount     int // count of all time-travel flags raised
	TimeRiskFlagCount int // count of flags containing "TIME-BOMB" or "CRITICAL"

	IsTimeSensitive       bool
	IsHoneypot            bool
	HasOwnerPrivileges    bool
	HasWhitelistMechanism bool
	HasGasAnomaly         bool

	CounterfactualRisk int
	AggregateRisk      int
	IsScam             bool
	OverallSummary     string

	Incomplete bool
}

// gasAnomalyRatio is the |gas_user-gas_owner|/avg threshold (spec.md 4.6).
const gasAnomalyRatio = 0.5

// Battery runs the full scenario matrix against one RunConfig template.
type Battery struct {
	harness Harness
}

func New(harness Harness) *Battery {
	return &Battery{harness: harness}
}

// Run executes the baseline, the time-travel family, and the counterfactual
// family concurrently (bounded by ctx's deadline), then derives the
// aggregate signals. A context cancellation or the first fatal *vm.Error
// with Reason == InvariantBroken cancels the group's context: scenarios that
// have not yet started executing then fail at once, while those already
// inside the interpreter run to completion. Whatever completed is still
// returned, with Incomplete set.
func (b *Battery) Run(ctx context.Context, base vm.RunConfig, owner, deployer, whitelisted common.Address) (Result, error) {
	var result Result

	g, gctx := errgroup.WithContext(ctx)

	baselineIdx := -1
	timeResults := make([]ScenarioResult, len(TimeOffsets))
	for i, offset := range TimeOffsets {
		i, offset := i, offset
		if offset == 0 {
			baselineIdx = i
		}
		g.Go(func() error {
			cfg := base
			cfg.Timestamp = addOffset(base.Timestamp, offset)
			res, err := b.runOne(gctx, cfg, offsetLabel(offset))
			timeResults[i] = res
			if err != nil {
				return err
			}
			return nil
		})
	}

	// Owner/Deployer/Whitelisted only enter the actor matrix when they are
	// actually known and distinct (spec.md 4.6): an unresolved owner would
	// otherwise simulate a call from the zero address and muddy the
	// honeypot signal.
	errSkippedActor := fmt.Errorf("actor not applicable")
	actors := []struct {
		kind   Actor
		addr   common.Address
		active bool
	}{
		{ActorCurrentUser, base.Sender, true},
		{ActorRandomUser, randomUserAddress(base.Sender), true},
		{ActorOwner, owner, !owner.IsZero()},
		{ActorDeployer, deployer, !deployer.IsZero() && deployer != owner},
		{ActorWhitelisted, whitelisted, !whitelisted.IsZero()},
	}
	cfResults := make([]ScenarioResult, len(actors))
	for i, a := range actors {
		i, a := i, a
		if !a.active {
			cfResults[i] = ScenarioResult{Label: a.kind.String(), Err: errSkippedActor}
			continue
		}
		g.Go(func() error {
			cfg := base
			cfg.Sender = a.addr
			res, err := b.runOne(gctx, cfg, a.kind.String())
			cfResults[i] = res
			if err != nil {
				return err
			}
			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		result.Incomplete = true
	}

	if baselineIdx >= 0 {
		result.Baseline = timeResults[baselineIdx]
	}

	entries, timeFlags, diverging, timeFlagCount, timeRiskFlagCount, timeSensitive := deriveTimeTravel(result.Baseline, timeResults)
	result.TimeTravel = entries
	result.DivergingOffsets = diverging
	result.TimeFlagCount = timeFlagCount
	result.TimeRiskFlagCount = timeRiskFlagCount
	result.IsTimeSensitive = timeSensitive

	actorAddrs := make([]common.Address, len(actors))
	for i, a := range actors {
		actorAddrs[i] = a.addr
	}
	cfEntries, cfFlags, diffs, isHoneypot, hasOwnerPriv, hasWhitelist, hasGasAnomaly, cfRisk := deriveCounterfactual(actorAddrs, cfResults)
	result.Counterfactual = cfEntries
	result.PrivilegeDiffs = diffs
	result.IsHoneypot = isHoneypot
	result.HasOwnerPrivileges = hasOwnerPriv
	result.HasWhitelistMechanism = hasWhitelist
	result.HasGasAnomaly = hasGasAnomaly
	result.CounterfactualRisk = cfRisk

	result.Flags = append(append([]string(nil), timeFlags...), cfFlags...)

	result.IsScam = result.IsHoneypot || result.HasWhitelistMechanism || containsAny(timeFlags, "TIME-BOMB", "CRITICAL")
	result.AggregateRisk = computeAggregateRisk(cfRisk, timeSensitive, timeFlags)
	result.OverallSummary = overallSummary(result)

	return result, err
}

func (b *Battery) runOne(ctx context.Context, cfg vm.RunConfig, label string) (ScenarioResult, error) {
	tr := tracer.New()
	cfg.Observer = tr
	outcome, err := b.harness.Execute(ctx, cfg)
	res := ScenarioResult{Label: label, Outcome: outcome, Err: err, Tracer: tr.Result()}
	if verr, ok := err.(*vm.Error); ok && verr.Fatal() {
		return res, err
	}
	return res, nil
}

func addOffset(ts uint64, offset int64) uint64 {
	if offset < 0 && uint64(-offset) > ts {
		return 0
	}
	return uint64(int64(ts) + offset)
}

func offsetLabel(offset int64) string {
	switch offset {
	case 0:
		return "baseline"
	case 3600:
		return "+1h"
	case 86400:
		return "+24h"
	case 604800:
		return "+7d"
	case 2592000:
		return "+30d"
	case -86400:
		return "-24h"
	default:
		return "custom"
	}
}

// offsetDuration is the human-readable duration spec.md's stable flag
// strings embed, e.g. "TIME-BOMB: Transaction fails at +7 Days".
func offsetDuration(offset int64) string {
	switch offset {
	case 3600:
		return "+1 Hour"
	case 86400:
		return "+1 Day"
	case 604800:
		return "+7 Days"
	case 2592000:
		return "+30 Days"
	case -86400:
		return "-1 Day"
	default:
		return fmt.Sprintf("%+ds", offset)
	}
}

// randomUserAddress derives a deterministic-but-distinct-from-sender
// address for the "unrelated random user" probe, so the same request always
// exercises the same synthetic identity.
func randomUserAddress(sender common.Address) common.Address {
	var out common.Address
	copy(out[:], sender[:])
	out[19] ^= 0xff
	return out
}

// deriveTimeTravel implements spec.md 4.6's time-travel classification
// rules. timeResults is indexed the same way as TimeOffsets.
func deriveTimeTravel(baseline ScenarioResult, timeResults []ScenarioResult) (entries []TimeTravelEntry, flags []string, diverging, timeFlagCount, timeRiskFlagCount int, timeSensitive bool) {
	for i, offset := range TimeOffsets {
		if offset == 0 {
			continue
		}
		res := timeResults[i]
		if !res.ran() || !baseline.ran() {
			continue
		}

		diverges := res.Outcome.Status != baseline.Outcome.Status
		entries = append(entries, TimeTravelEntry{
			OffsetSeconds: offset,
			Description:   offsetDuration(offset),
			Outcome:       res.Outcome,
			Diverges:      diverges,
		})
		if diverges {
			diverging++
			timeSensitive = true
		}

		switch {
		case offset > 0 && baseline.Outcome.Succeeded() && res.Outcome.Reverted():
			flags = append(flags, fmt.Sprintf("TIME-BOMB: Transaction fails at %s", offsetDuration(offset)))
			timeFlagCount++
			timeRiskFlagCount++
			if offset <= 604800 {
				flags = append(flags, "CRITICAL: Fails within 7 days of execution")
				timeFlagCount++
				timeRiskFlagCount++
			}
		case offset > 0 && baseline.Outcome.Reverted() && res.Outcome.Succeeded():
			flags = append(flags, fmt.Sprintf("DELAYED TRADING: Trading opens at %s", offsetDuration(offset)))
			timeFlagCount++
			if offset > 86400 {
				flags = append(flags, fmt.Sprintf("WARNING: Extended trading delay, opens at %s", offsetDuration(offset)))
				timeFlagCount++
			}
		case offset < 0 && res.Outcome.Succeeded() && baseline.Outcome.Reverted():
			flags = append(flags, "TRADING CLOSED: Transaction worked before but fails now")
			timeFlagCount++
		}
	}
	return
}

// deriveCounterfactual implements spec.md 4.6's actor-matrix detection
// rules.
func deriveCounterfactual(addrs []common.Address, cfResults []ScenarioResult) (entries []CounterfactualEntry, flags []string, diffs []PrivilegeDiff, isHoneypot, hasOwnerPriv, hasWhitelist, hasGasAnomaly bool, contribution int) {
	var owner, randomUser, whitelisted ScenarioResult
	var haveOwner, haveRandom, haveWhitelisted bool
	nonOwnerRan, nonOwnerAllReverted := 0, true
	anyOwnerSucceeded := false

	for i, res := range cfResults {
		role := Actor(i)
		entries = append(entries, CounterfactualEntry{ActorRole: role, Address: addrs[i], Outcome: res.Outcome})

		if !res.ran() {
			continue
		}
		switch role {
		case ActorOwner:
			owner, haveOwner = res, true
			if res.Outcome.Succeeded() {
				anyOwnerSucceeded = true
			}
		case ActorRandomUser:
			randomUser, haveRandom = res, true
			fallthrough
		case ActorCurrentUser, ActorDeployer, ActorWhitelisted:
			if role != ActorOwner {
				nonOwnerRan++
				if res.Outcome.Succeeded() {
					nonOwnerAllReverted = false
				}
			}
		}
		if role == ActorWhitelisted {
			whitelisted, haveWhitelisted = res, true
		}
	}

	if nonOwnerRan > 0 && nonOwnerAllReverted && haveOwner && anyOwnerSucceeded {
		isHoneypot = true
		hasOwnerPriv = true
		contribution = 100
		flags = append(flags, "CRITICAL HONEYPOT: Owner can execute, but users CANNOT")
		diffs = append(diffs, PrivilegeDiff{Severity: "Critical", Description: "Owner can execute, users cannot"})
	}

	if haveWhitelisted && haveRandom && whitelisted.Outcome.Succeeded() && randomUser.Outcome.Reverted() {
		hasWhitelist = true
		if contribution < 80 {
			contribution = 80
		}
		flags = append(flags, "WHITELIST DETECTED")
	}

	if haveRandom && haveOwner && randomUser.Outcome.Succeeded() && owner.Outcome.Reverted() {
		flags = append(flags, "UNUSUAL: Users execute but owner cannot execute the same call")
		diffs = append(diffs, PrivilegeDiff{Severity: "Medium", Description: "Users can execute, owner cannot"})
	}

	if haveRandom && haveOwner && randomUser.Outcome.Succeeded() && owner.Outcome.Succeeded() {
		userGas, ownerGas := randomUser.Outcome.GasUsed, owner.Outcome.GasUsed
		avg := float64(userGas+ownerGas) / 2
		if avg > 0 {
			ratio := float64(mathutil.AbsoluteDifferenceU64(userGas, ownerGas)) / avg
			if ratio > gasAnomalyRatio {
				hasGasAnomaly = true
				contribution += 15
				flags = append(flags, fmt.Sprintf("GAS ANOMALY: Owner and user gas usage differ by %.0f%%", ratio*100))
			}
		}
	}

	if contribution > 100 {
		contribution = 100
	}
	return
}

func computeAggregateRisk(counterfactualRisk int, timeSensitive bool, timeFlags []string) int {
	risk := counterfactualRisk
	if timeSensitive {
		risk += 25
	}
	if containsAny(timeFlags, "TIME-BOMB") {
		risk += 25
	}
	if risk > 100 {
		risk = 100
	}
	if risk < 0 {
		risk = 0
	}
	return risk
}

func containsAny(flags []string, substrs ...string) bool {
	for _, f := range flags {
		for _, s := range substrs {
			if strings.Contains(f, s) {
				return true
			}
		}
	}
	return false
}

func overallSummary(r Result) string {
	switch {
	case r.IsHoneypot:
		return "Simulation confirmed owner-only execution: non-owner callers revert"
	case r.HasWhitelistMechanism:
		return "Simulation confirmed a whitelist-gated transfer mechanism"
	case containsAny(r.Flags, "TIME-BOMB"):
		return "Simulation detected a time-delayed failure condition"
	default:
		return "Simulation found no scam pattern across the actor and time-travel matrix"
	}
}
