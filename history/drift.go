package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/evmsentinel/txfirewall/common"
)

// Entry is one recorded scan of an address: its flag set, capability hash,
// risk score, and when it happened.
type Entry struct {
	Flags          []string `json:"flags"`
	CapabilityHash string   `json:"capability_hash"`
	Risk           int      `json:"risk"`
	Timestamp      int64    `json:"timestamp"`
}

// Diff is what changed between the previous scan of an address and this one.
type Diff struct {
	IsFirstScan  bool
	NewFlags     []string
	RemovedFlags []string
	RiskDelta    int    // this scan's risk minus the previous scan's risk
	RiskIncreasedFlag string // empty unless the delta crosses a reporting threshold
}

// riskIncreaseThresholds are the +20/+40/+60 bands spec.md 4.9 names for
// the auto-generated "Risk Increased" flag.
var riskIncreaseThresholds = []struct {
	min   int
	label string
}{
	{60, "Risk Increased (+60 since last scan)"},
	{40, "Risk Increased (+40 since last scan)"},
	{20, "Risk Increased (+20 since last scan)"},
}

// Detector is the Drift Detector (C9): reads an address's history before a
// scan's verdict is finalized, then records the new entry after.
type Detector struct {
	store Store
}

func NewDetector(store Store) *Detector {
	return &Detector{store: store}
}

func listKey(ch common.ChainID, addr common.Address) string {
	return fmt.Sprintf("history:%d:%s", ch, addr.String())
}

// Diff compares flags/risk against the most recent recorded entry for addr,
// if any, without mutating history -- call Record afterward once the
// verdict for this scan is final.
func (d *Detector) Diff(ctx context.Context, ch common.ChainID, addr common.Address, flags []string, risk int) (Diff, error) {
	raw, err := d.store.ListRange(ctx, listKey(ch, addr), 0, 0)
	if err != nil {
		return Diff{}, err
	}
	if len(raw) == 0 {
		return Diff{IsFirstScan: true}, nil
	}

	var prev Entry
	if err := json.Unmarshal([]byte(raw[0]), &prev); err != nil {
		return Diff{}, err
	}

	prevSet := toSet(prev.Flags)
	curSet := toSet(flags)

	diff := Diff{RiskDelta: risk - prev.Risk}
	for _, f := range flags {
		if !prevSet[f] {
			diff.NewFlags = append(diff.NewFlags, f)
		}
	}
	for _, f := range prev.Flags {
		if !curSet[f] {
			diff.RemovedFlags = append(diff.RemovedFlags, f)
		}
	}
	for _, band := range riskIncreaseThresholds {
		if diff.RiskDelta >= band.min {
			diff.RiskIncreasedFlag = band.label
			break
		}
	}
	return diff, nil
}

// Record appends this scan's entry to addr's history list and trims the list
// to MaxEntries, then writes the same entry under its own
// scan:<chain>:<address>:<timestamp> key with a TTLDays expiry. The list
// entries themselves carry no expiry.
func (d *Detector) Record(ctx context.Context, ch common.ChainID, addr common.Address, flags []string, risk int, now int64) error {
	entry := Entry{
		Flags:          flags,
		CapabilityHash: CapabilityHash(flags),
		Risk:           risk,
		Timestamp:      now,
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	key := listKey(ch, addr)
	if err := d.store.ListPushFront(ctx, key, string(payload)); err != nil {
		return err
	}
	if err := d.store.ListTrim(ctx, key, MaxEntries); err != nil {
		return err
	}
	return d.store.SetWithTTL(ctx, fmt.Sprintf("scan:%d:%s:%d", ch, addr.String(), now), string(payload), TTLDays*24*3600)
}

func toSet(flags []string) map[string]bool {
	m := make(map[string]bool, len(flags))
	for _, f := range flags {
		m[f] = true
	}
	return m
}
