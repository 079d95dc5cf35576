package store

import "time"

// Status is an experiment lifecycle state (spec §3).
type Status string

const (
	StatusQueued           Status = "queued"
	StatusRunning          Status = "running"
	StatusNeedsReport      Status = "needs-report"
	StatusGeneratingReport Status = "generating-report"
	StatusReportFailed     Status = "report-failed"
	StatusCompleted        Status = "completed"
)

// legalTransitions enumerates the status edges of spec §3. set_status
// rejects anything not on this edge set.
var legalTransitions = map[Status]map[Status]bool{
	StatusQueued:           {StatusRunning: true},
	StatusRunning:          {StatusNeedsReport: true, StatusRunning: true},
	StatusNeedsReport:      {StatusGeneratingReport: true},
	StatusGeneratingReport: {StatusCompleted: true, StatusReportFailed: true},
}

// Assignee identifies who may pick up an experiment.
type Assignee string

const (
	AssigneeDistributed Assignee = "distributed"
	AssigneeUnassigned  Assignee = "unassigned"
)

// AgentAssignee returns the assignee value for a specific agent.
func AgentAssignee(name string) Assignee {
	return Assignee("agent:" + name)
}

// AgentName returns the agent name if this assignee names a specific
// agent, and ok=false otherwise.
func (a Assignee) AgentName() (name string, ok bool) {
	const prefix = "agent:"
	if len(a) > len(prefix) && string(a[:len(prefix)]) == prefix {
		return string(a[len(prefix):]), true
	}
	return "", false
}

// Agent is the registry record backing spec component C2.
type Agent struct {
	Name          string
	Capabilities  []string
	LastHeartbeat *time.Time
	GitRevision   string
}

// Experiment is the durable record backing spec component C3.
type Experiment struct {
	Name                string
	Status              Status
	Assignee            Assignee
	Priority            int
	GithubIssue         string
	ToolchainBaseline   string
	ToolchainCandidate  string
	CrateSelect         string
	Items               []string
	CreatedAt           time.Time
}

// Toolchains returns the experiment's two toolchains in (baseline,
// candidate) order, matching spec §3's "ordered pair".
func (e Experiment) Toolchains() [2]string {
	return [2]string{e.ToolchainBaseline, e.ToolchainCandidate}
}

// Result is one stored (experiment, item, toolchain) outcome.
type Result struct {
	Experiment     string
	Item           string
	Toolchain      string // "baseline" or "candidate"
	Outcome        string
	LogCompressed  []byte // gzip-compressed raw log bytes
	VersionBefore  string
	VersionAfter   string
	RecordedAt     time.Time
}

// Toolchain identifiers used as the "toolchain_id" of spec §3.
const (
	ToolchainBaseline  = "baseline"
	ToolchainCandidate = "candidate"
)
