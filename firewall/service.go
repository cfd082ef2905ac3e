// Package firewall wires the Chain Oracle Client, EVM Harness, Proxy
// Resolver, Static Bytecode Analyzer, Simulation Battery, Feature Extractor,
// Classifier Client, Drift Detector, and Verdict Assembler into the single
// pre-signing Scan operation the rest of the world calls.
package firewall

import (
	"context"
	"time"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/evmsentinel/txfirewall/bytecode"
	"github.com/evmsentinel/txfirewall/chain"
	"github.com/evmsentinel/txfirewall/classifier"
	"github.com/evmsentinel/txfirewall/common"
	"github.com/evmsentinel/txfirewall/features"
	"github.com/evmsentinel/txfirewall/history"
	"github.com/evmsentinel/txfirewall/proxy"
	"github.com/evmsentinel/txfirewall/simulation"
	"github.com/evmsentinel/txfirewall/verdict"
	"github.com/evmsentinel/txfirewall/vm"
)

// ScanDeadline is the "15s overall deadline" a scan's structured concurrency
// scope runs under (spec.md section 5).
const ScanDeadline = 15 * time.Second

// PrefetchSlotCount is how many leading storage slots get bulk-prefetched
// per scan; the range covers every base slot index in vm.BalanceSlots and
// vm.OwnerSlots (the highest is 51). The harness injects these prefetched
// values as they are and writes nothing else into those slots.
const PrefetchSlotCount = 64

// Service is the top-level orchestrator. It holds no per-scan state; every
// field is safe to share across concurrent Scan calls.
type Service struct {
	oracle     chain.Oracle
	harness    *vm.Harness
	resolver   *proxy.Resolver
	classifier *classifier.Client
	detector   *history.Detector
	metrics    *Metrics
	log        *zap.Logger
}

func NewService(oracle chain.Oracle, classifierClient *classifier.Client, store history.Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		oracle:     oracle,
		harness:    vm.NewHarness(),
		resolver:   proxy.NewResolver(oracle),
		classifier: classifierClient,
		detector:   history.NewDetector(store),
		metrics:    NewMetrics(),
		log:        log,
	}
}

// Scan is the single pre-signing analysis operation: given a candidate
// transaction, it returns a Verdict (or a partial, low-confidence result if
// the scan's deadline expires before every scenario completes).
func (s *Service) Scan(ctx context.Context, req common.TransactionRequest) (Envelope, error) {
	start := time.Now()
	s.metrics.ScansStarted.Inc()

	ctx, cancel := context.WithTimeout(ctx, ScanDeadline)
	defer cancel()

	resolution, err := s.resolver.Resolve(ctx, req.Chain, req.To)
	if err != nil {
		s.metrics.ScanErrors.Inc()
		return Envelope{}, err
	}

	bundle, err := s.oracle.Prefetch(ctx, req.Chain, resolution.Implementation, PrefetchSlotCount)
	if err != nil {
		s.metrics.ScanErrors.Inc()
		return Envelope{}, err
	}
	if resolution.Implementation != req.To {
		proxyBundle, err := s.oracle.Prefetch(ctx, req.Chain, req.To, PrefetchSlotCount)
		if err != nil {
			s.metrics.ScanErrors.Inc()
			return Envelope{}, err
		}
		bundle.Storage = proxyBundle.Storage
	}

	owner, deployer, whitelisted := syntheticActors(resolution.Implementation)

	secReport := bytecode.Scan(ctx, s.oracle, req.Chain, resolution.Implementation, bundle.Code, func() ([]byte, error) {
		outcome, err := s.harness.Execute(ctx, ownerProbeConfig(req, resolution, bundle))
		if err != nil {
			return nil, err
		}
		if outcome.Reverted() {
			return nil, errRevertedProbe(outcome.RevertReason)
		}
		return outcome.ReturnValue, nil
	})

	// Re-homing: the call always targets req.To (the proxy, if there is
	// one), but the code that address runs is the resolved
	// implementation's bytecode -- storage reads still happen against
	// req.To's own account, exactly as a real delegatecall proxy behaves.
	contracts := map[common.Address]vm.ContractState{
		req.To: contractStateFromBundle(bundle),
	}
	if resolution.Implementation != req.To {
		contracts[resolution.Implementation] = contractStateFromBundle(bundle)
	}

	baseCfg := vm.RunConfig{
		Sender:      req.From,
		To:          req.To,
		Data:        req.Data,
		Value:       req.Value,
		GasLimit:    3_000_000,
		BlockNumber: 1,
		Timestamp:   uint64(start.Unix()),
		Contracts:   contracts,
	}

	battery := simulation.New(s.harness)
	simResult, simErr := battery.Run(ctx, baseCfg, owner, deployer, whitelisted)
	if simErr != nil {
		s.log.Warn("simulation battery did not complete within the scan deadline", zap.Error(simErr))
	}

	if resolution.Implementation != req.To {
		secReport.Flags = append(secReport.Flags, "Proxy Contract ("+proxyKindLabel(resolution)+")")
	}

	diff, err := s.detector.Diff(ctx, req.Chain.ID, resolution.Implementation, verdictFlagsFromReport(secReport), secReport.Score)
	if err != nil {
		s.log.Warn("history lookup failed, proceeding without drift signal", zap.Error(err))
		diff = history.Diff{IsFirstScan: true}
	}

	vec := features.Build(secReport, resolution, simResult)

	var pred *classifier.Prediction
	if s.classifier != nil {
		pred = s.classifier.Classify(ctx, vec)
	}

	v := verdict.Assemble(secReport, simResult, pred, diff)
	story := verdict.ReconcileMechanismStory(secReport, simResult)

	if recordErr := s.detector.Record(ctx, req.Chain.ID, resolution.Implementation, v.Flags, v.RiskScore, start.Unix()); recordErr != nil {
		s.log.Warn("failed to record scan history", zap.Error(recordErr))
	}

	if simResult.Incomplete {
		v.Flags = append(v.Flags, "Analysis incomplete")
		v.Source = verdict.SourceDefault
		if v.Confidence > 50 {
			v.Confidence = 50
		}
	}

	env := buildEnvelope(secReport, resolution, simResult, diff, pred, v, story)

	s.metrics.ScanDuration.Observe(time.Since(start).Seconds())
	s.metrics.ScansCompleted.Inc()
	return env, nil
}

func proxyKindLabel(resolution proxy.Resolution) string {
	if len(resolution.Hops) == 0 {
		return "unknown"
	}
	switch resolution.Hops[len(resolution.Hops)-1].Kind {
	case proxy.Transparent1967:
		return "EIP-1967"
	case proxy.Minimal1167:
		return "EIP-1167"
	case proxy.UUPS1822:
		return "EIP-1822"
	case proxy.Legacy897:
		return "EIP-897"
	default:
		return "custom"
	}
}

func proxyKindWireValue(k proxy.Kind) string {
	switch k {
	case proxy.Minimal1167:
		return "eip1167_minimal"
	case proxy.Transparent1967:
		return "eip1967_transparent"
	case proxy.UUPS1822:
		return "eip1822_uups"
	case proxy.Legacy897:
		return "eip897_legacy"
	case proxy.CustomDelegatecall:
		return "custom_delegatecall"
	default:
		return ""
	}
}

func buildEnvelope(sec bytecode.Report, resolution proxy.Resolution, sim simulation.Result, diff history.Diff, pred *classifier.Prediction, v verdict.Verdict, story bytecode.MechanismStory) Envelope {
	env := Envelope{
		Status:           v.Status.String(),
		InstructionCount: sim.Baseline.Tracer.Steps,
		SstoreCount:      sim.Baseline.Tracer.Counters.SSTORE,
		CallCount:        sim.Baseline.Tracer.Counters.CALL,
		Incomplete:       sim.Incomplete,
	}

	var ownerAddr string
	if sec.OwnerResolved && !sec.Owner.IsZero() {
		ownerAddr = sec.Owner.String()
	}
	events := make([]TracingEventJSON, 0, len(sim.Baseline.Tracer.Events))
	for _, e := range sim.Baseline.Tracer.Events {
		events = append(events, TracingEventJSON{PC: e.PC, Name: e.Name})
	}
	env.SecurityReport = SecurityReportJSON{
		IsHoneypot:           sec.IsHoneypotSuspect,
		OwnershipStatus:      sec.OwnershipStatus.String(),
		RiskScore:            sec.Score,
		Flags:                v.Flags,
		OwnerAddress:         ownerAddr,
		FriendlyExplanation:  sec.FriendlyExplanation,
		MechanismStory: MechanismStoryJSON{
			Title:    story.Title,
			Story:    story.Story,
			Severity: story.Severity.String(),
		},
		TracingEvents: events,
	}

	var implAddr string
	if len(resolution.Hops) > 0 {
		implAddr = resolution.Implementation.String()
	}
	env.ProxyInfo = ProxyInfoJSON{
		IsProxy:        len(resolution.Hops) > 0,
		ProxyKind:      proxyKindWireValue(lastHopKind(resolution)),
		Implementation: implAddr,
	}

	if !diff.IsFirstScan {
		env.DriftAnalysis = &DriftAnalysisJSON{
			HasDrift:     diff.RiskDelta != 0 || len(diff.NewFlags) > 0 || len(diff.RemovedFlags) > 0,
			RiskDelta:    diff.RiskDelta,
			NewFlags:     diff.NewFlags,
			RemovedFlags: diff.RemovedFlags,
		}
	}

	ttEntries := make([]TimeTravelEntryJSON, 0, len(sim.TimeTravel))
	for _, e := range sim.TimeTravel {
		ttEntries = append(ttEntries, TimeTravelEntryJSON{
			Offset:      e.OffsetSeconds,
			Description: e.Description,
			Status:      e.Outcome.Status.String(),
			Diverges:    e.Diverges,
		})
	}
	cfEntries := make([]CounterfactualEntryJSON, 0, len(sim.Counterfactual))
	for _, e := range sim.Counterfactual {
		cfEntries = append(cfEntries, CounterfactualEntryJSON{
			Actor:   e.ActorRole.String(),
			Address: e.Address.String(),
			Status:  e.Outcome.Status.String(),
		})
	}
	diffs := make([]PrivilegeDiffJSON, 0, len(sim.PrivilegeDiffs))
	for _, d := range sim.PrivilegeDiffs {
		diffs = append(diffs, PrivilegeDiffJSON{Severity: d.Severity, Description: d.Description})
	}
	env.AdvancedAnalysis = AdvancedAnalysisJSON{
		TimeTravel: TimeTravelJSON{
			Entries:         ttEntries,
			IsTimeSensitive: sim.IsTimeSensitive,
		},
		Counterfactual: CounterfactualJSON{
			Entries:               cfEntries,
			PrivilegeDiffs:         diffs,
			IsHoneypot:             sim.IsHoneypot,
			HasOwnerPrivileges:     sim.HasOwnerPrivileges,
			HasWhitelistMechanism:  sim.HasWhitelistMechanism,
			HasGasAnomaly:          sim.HasGasAnomaly,
		},
		OverallRiskScore: sim.AggregateRisk,
		OverallSummary:   sim.OverallSummary,
		IsScam:           sim.IsScam,
	}

	if pred != nil {
		env.MLAnalysis = &MLAnalysisJSON{
			ScamProbability:    pred.ScamProbability,
			Uncertainty:        pred.Uncertainty,
			ConfidenceInterval: pred.ConfidenceInterval,
			Verdict:            pred.Verdict,
			Reason:             pred.Reason,
			ModelVersion:       pred.ModelVersion,
		}
	}

	env.FinalVerdict = FinalVerdictJSON{
		Verdict:            v.Status.String(),
		Reason:             v.Explanation,
		Confidence:         v.Confidence,
		Source:             v.Source.String(),
		Uncertainty:        v.Uncertainty,
		ConfidenceInterval: v.ConfidenceInterval,
	}

	return env
}

func lastHopKind(resolution proxy.Resolution) proxy.Kind {
	if len(resolution.Hops) == 0 {
		return proxy.NotAProxy
	}
	return resolution.Hops[len(resolution.Hops)-1].Kind
}

func syntheticActors(implementation common.Address) (owner, deployer, whitelisted common.Address) {
	owner = deriveActor(implementation, 0x01)
	deployer = deriveActor(implementation, 0x02)
	whitelisted = deriveActor(implementation, 0x03)
	return
}

func deriveActor(base common.Address, salt byte) common.Address {
	var out common.Address
	copy(out[:], base[:])
	out[0] ^= salt
	return out
}

func contractStateFromBundle(bundle chain.PrefetchBundle) vm.ContractState {
	return vm.ContractState{Code: bundle.Code, Storage: storageFromBundle(bundle)}
}

// storageFromBundle turns the oracle's slot-index-keyed prefetch bundle into
// the slot-hash-keyed map the harness's StateDB injection expects; the
// prefetch bundle only ever covers direct slot indices 0..N-1, which is
// exactly the DirectSlot encoding vm.DirectSlot uses.
func storageFromBundle(bundle chain.PrefetchBundle) map[gethcommon.Hash]gethcommon.Hash {
	out := make(map[gethcommon.Hash]gethcommon.Hash, len(bundle.Storage))
	for idx, value := range bundle.Storage {
		out[vm.DirectSlot(idx)] = gethcommon.Hash(value)
	}
	return out
}

func ownerProbeConfig(req common.TransactionRequest, resolution proxy.Resolution, bundle chain.PrefetchBundle) vm.RunConfig {
	return vm.RunConfig{
		Sender:      req.From,
		To:          req.To,
		Data:        bytecode.OwnerSelector[:],
		GasLimit:    200_000,
		BlockNumber: 1,
		Timestamp:   1,
		Contracts: map[common.Address]vm.ContractState{
			req.To: {Code: bundle.Code, Storage: storageFromBundle(bundle)},
		},
	}
}

func verdictFlagsFromReport(r bytecode.Report) []string {
	flags := make([]string, 0, len(r.Matched))
	for _, m := range r.Matched {
		flags = append(flags, m.Label)
	}
	return flags
}

type errRevertedProbe string

func (e errRevertedProbe) Error() string { return "owner() probe reverted: " + string(e) }
