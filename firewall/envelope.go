package firewall

// Envelope is the JSON response shape spec.md section 6 describes: the
// opcode-level counters, the Security Report, the Proxy Resolver's
// findings, an optional Drift Analysis, the Simulation Battery's full
// time-travel/counterfactual detail, an optional ML Analysis, and the
// Verdict Assembler's final call.
type Envelope struct {
	Status           string `json:"status"`
	InstructionCount int    `json:"instruction_count"`
	SstoreCount      int    `json:"sstore_count"`
	CallCount        int    `json:"call_count"`

	SecurityReport   SecurityReportJSON   `json:"security_report"`
	ProxyInfo        ProxyInfoJSON        `json:"proxy_info"`
	DriftAnalysis    *DriftAnalysisJSON   `json:"drift_analysis,omitempty"`
	AdvancedAnalysis AdvancedAnalysisJSON `json:"advanced_analysis"`
	MLAnalysis       *MLAnalysisJSON      `json:"ml_analysis,omitempty"`
	FinalVerdict     FinalVerdictJSON     `json:"final_verdict"`

	Incomplete bool `json:"incomplete"`
}

// SecurityReportJSON is the Static Bytecode Analyzer's report, spec.md 4.5.
type SecurityReportJSON struct {
	IsHoneypot          bool                 `json:"is_honeypot"`
	OwnershipStatus     string               `json:"ownership_status"`
	RiskScore           int                  `json:"risk_score"`
	Flags               []string             `json:"flags"`
	OwnerAddress        string               `json:"owner_address,omitempty"`
	FriendlyExplanation string               `json:"friendly_explanation"`
	MechanismStory      MechanismStoryJSON   `json:"mechanism_story"`
	TracingEvents       []TracingEventJSON   `json:"tracing_events"`
}

type MechanismStoryJSON struct {
	Title    string `json:"title"`
	Story    string `json:"story"`
	Severity string `json:"severity"`
}

type TracingEventJSON struct {
	PC   uint64 `json:"pc"`
	Name string `json:"name"`
}

// ProxyInfoJSON is the Proxy Resolver's findings, spec.md 4.4.
type ProxyInfoJSON struct {
	IsProxy        bool   `json:"is_proxy"`
	ProxyKind      string `json:"proxy_kind,omitempty"`
	Implementation string `json:"implementation,omitempty"`
	Beacon         string `json:"beacon,omitempty"`
	Admin          string `json:"admin,omitempty"`
}

// DriftAnalysisJSON is the Drift Detector's comparison against the
// address's last recorded scan, spec.md 4.9. Absent entirely on a first scan.
type DriftAnalysisJSON struct {
	HasDrift             bool     `json:"has_drift"`
	RiskDelta            int      `json:"risk_delta"`
	NewFlags             []string `json:"new_flags"`
	RemovedFlags         []string `json:"removed_flags"`
	PreviousScanTimestamp int64   `json:"previous_scan_timestamp,omitempty"`
}

// AdvancedAnalysisJSON is the Simulation Battery's full output, spec.md 4.6.
type AdvancedAnalysisJSON struct {
	TimeTravel      TimeTravelJSON      `json:"time_travel"`
	Counterfactual  CounterfactualJSON  `json:"counterfactual"`
	OverallRiskScore int                `json:"overall_risk_score"`
	OverallSummary  string              `json:"overall_summary"`
	IsScam          bool                `json:"is_scam"`
}

type TimeTravelJSON struct {
	Entries         []TimeTravelEntryJSON `json:"entries"`
	IsTimeSensitive bool                  `json:"is_time_sensitive"`
}

type TimeTravelEntryJSON struct {
	Offset      int64  `json:"offset_seconds"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Diverges    bool   `json:"diverges"`
}

type CounterfactualJSON struct {
	Entries               []CounterfactualEntryJSON `json:"entries"`
	PrivilegeDiffs         []PrivilegeDiffJSON       `json:"privilege_diffs"`
	IsHoneypot             bool                      `json:"is_honeypot"`
	HasOwnerPrivileges     bool                      `json:"has_owner_privileges"`
	HasWhitelistMechanism  bool                      `json:"has_whitelist_mechanism"`
	HasGasAnomaly          bool                      `json:"has_gas_anomaly"`
}

type CounterfactualEntryJSON struct {
	Actor   string `json:"actor"`
	Address string `json:"address"`
	Status  string `json:"status"`
}

type PrivilegeDiffJSON struct {
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// MLAnalysisJSON is the Classifier Client's prediction, spec.md 4.8.
// Present only when a classifier was configured and it actually answered.
type MLAnalysisJSON struct {
	ScamProbability    float64    `json:"scam_probability"`
	Uncertainty        float64    `json:"uncertainty"`
	ConfidenceInterval [2]float64 `json:"confidence_interval"`
	Verdict            string     `json:"verdict"`
	Reason             string     `json:"reason"`
	ModelVersion       string     `json:"model_version"`
}

// FinalVerdictJSON is the Verdict Assembler's decision, spec.md 4.10.
type FinalVerdictJSON struct {
	Verdict            string      `json:"verdict"`
	Reason             string      `json:"reason"`
	Confidence         int         `json:"confidence"`
	Source             string      `json:"source"`
	Uncertainty        *float64    `json:"uncertainty,omitempty"`
	ConfidenceInterval *[2]float64 `json:"confidence_interval,omitempty"`
}
