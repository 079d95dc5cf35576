package coordinator

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/crater-dist/crater/internal/assign"
	"github.com/crater-dist/crater/internal/store"
	"github.com/crater-dist/crater/internal/wire"
)

// handleConfig implements endpoint_config/config_old: POST stores the
// agent's reported capabilities, GET defaults them to ["linux"] for
// agents that predate the capability handshake.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r)

	capabilities := []string{"linux"}
	if r.Method == http.MethodPost {
		var req wire.ConfigRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeEnvelope(w, http.StatusBadRequest, wire.Internal("invalid config request body"))
			return
		}
		if len(req.Capabilities) > 0 {
			capabilities = req.Capabilities
		}
	}

	if err := s.registry.UpsertCapabilities(principal.Name, capabilities); err != nil {
		writeStoreError(w, err)
		return
	}

	writeSuccess(w, wire.ConfigResult{
		AgentName: principal.Name,
		CraterConfig: wire.CraterConfig{
			CrateSelect: "full",
		},
	})
}

// handleNextExperiment implements endpoint_next_experiment (spec §4.4/§4.5).
func (s *Server) handleNextExperiment(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r)

	result, err := s.engine.Claim(principal.Name)
	if err != nil {
		if errors.Is(err, store.ErrNoClaimableWork) {
			writeSuccess(w, nil)
			return
		}
		writeStoreError(w, err)
		return
	}

	writeSuccess(w, wire.ExperimentResult{
		Experiment: wire.ExperimentInfo{
			Name:        result.Experiment.Name,
			Toolchains:  result.Experiment.Toolchains(),
			GithubIssue: result.Experiment.GithubIssue,
			CrateSelect: result.Experiment.CrateSelect,
		},
		Items: result.Items,
	})
}

// handleNextCrate implements endpoint_next_crate (spec §4.4 point 2): pops
// one uncompleted item from the named experiment directly against the
// store, bypassing the assignment lock entirely (spec §5 — next-crate
// relies on C3's own per-row atomicity, not the single-writer lock
// next-experiment/record-progress/error/the liveness cron share).
func (s *Server) handleNextCrate(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r)

	var experiment string
	if err := json.NewDecoder(r.Body).Decode(&experiment); err != nil {
		writeEnvelope(w, http.StatusBadRequest, wire.Internal("invalid next-crate request body"))
		return
	}

	item, err := s.db.NextItemFor(experiment, principal.Name)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if item == "" {
		writeSuccess(w, nil)
		return
	}
	writeSuccess(w, item)
}

// handleRecordProgress implements endpoint_record_progress.
func (s *Server) handleRecordProgress(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r)

	var req wire.ProgressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, http.StatusBadRequest, wire.Internal("invalid record-progress request body"))
		return
	}

	outcomes := make([]assign.RecordOutcome, 0, len(req.Results))
	for _, entry := range req.Results {
		logBytes, err := base64.StdEncoding.DecodeString(entry.Log)
		if err != nil {
			writeEnvelope(w, http.StatusBadRequest, wire.Internal("invalid base64 log"))
			return
		}
		outcome := assign.RecordOutcome{
			Item:      entry.Crate,
			Toolchain: entry.Toolchain,
			Outcome:   entry.Result,
			Log:       logBytes,
		}
		if req.Version != nil {
			outcome.VersionBefore = req.Version.Before
			outcome.VersionAfter = req.Version.After
		}
		outcomes = append(outcomes, outcome)
	}

	if err := s.engine.Record(principal.Name, req.ExperimentName, outcomes); err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, true)
}

// handleHeartbeat implements endpoint_heartbeat.
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r)

	if err := s.registry.RecordHeartbeat(principal.Name, time.Now()); err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, true)
}

// handleError implements endpoint_error: the agent reports it can no
// longer continue an experiment, so its in-flight items are released for
// another agent to pick up (spec §3's running->running self-loop).
func (s *Server) handleError(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r)

	var req wire.ErrorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, http.StatusBadRequest, wire.Internal("invalid error request body"))
		return
	}

	s.log.Error("agent reported failure", "agent", principal.Name, "experiment", req.ExperimentName, "error", req.Error)

	if err := s.engine.Fail(principal.Name, req.ExperimentName); err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, true)
}
