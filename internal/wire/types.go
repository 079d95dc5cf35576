package wire

// ConfigResult is the payload returned by POST/GET config.
type ConfigResult struct {
	AgentName    string       `json:"agent-name"`
	CraterConfig CraterConfig `json:"crater-config"`
}

// CraterConfig is the subset of coordinator configuration agents need in
// order to pick a crate-selection strategy and know how much to run
// locally. It is not the coordinator's own startup configuration (that is
// out of scope, see SPEC_FULL §1/§10.3) — it is a small snapshot
// handed to agents on every /config call.
type CraterConfig struct {
	CrateSelect      string `json:"crate-select"`
	DemoPerms        bool   `json:"demo-perms,omitempty"`
	IgnoreBlacklist  bool   `json:"ignore-blacklist,omitempty"`
}

// ExperimentResult is the payload returned by next-experiment: the
// experiment plus the items the agent should work through next (either its
// resumed in-flight set or a freshly computed uncompleted set, see
// SPEC_FULL §4.3/§4.4).
type ExperimentResult struct {
	Experiment ExperimentInfo `json:"experiment"`
	Items      []string       `json:"items"`
}

// ExperimentInfo is the wire projection of store.Experiment.
type ExperimentInfo struct {
	Name        string   `json:"name"`
	Toolchains  [2]string `json:"toolchains"`
	GithubIssue string   `json:"github-issue,omitempty"`
	CrateSelect string   `json:"crate-select,omitempty"`
}

// ProgressRequest is the payload of POST record-progress.
type ProgressRequest struct {
	ExperimentName string          `json:"experiment-name"`
	Results        []ResultEntry   `json:"results"`
	Version        *VersionPair    `json:"version,omitempty"`
}

// ResultEntry is one (item, toolchain, outcome, log) tuple reported in a
// single record-progress call — the request carries a slice so an agent can
// batch both toolchains' results for one item in a single round trip.
type ResultEntry struct {
	Crate     string `json:"crate"`
	Toolchain string `json:"toolchain"`
	Result    string `json:"result"`
	Log       string `json:"log"` // base64-encoded raw log bytes
}

// VersionPair records the two dependency-resolution snapshots compared by
// an experiment run, when applicable (e.g. cargo lockfile diffs between
// baseline and candidate toolchain runs).
type VersionPair struct {
	Before string `json:"before,omitempty"`
	After  string `json:"after,omitempty"`
}

// ErrorRequest is the payload of POST error.
type ErrorRequest struct {
	ExperimentName string `json:"experiment-name"`
	Error          string `json:"error"`
}

// ConfigRequest is the payload of POST config.
type ConfigRequest struct {
	Capabilities []string `json:"capabilities"`
}
