package coordinator

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/crater-dist/crater/internal/store"
	"github.com/crater-dist/crater/internal/wire"
)

func writeEnvelope(w http.ResponseWriter, status int, env wire.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(env)
}

func writeSuccess(w http.ResponseWriter, payload interface{}) {
	env, err := wire.Success(payload)
	if err != nil {
		writeEnvelope(w, http.StatusInternalServerError, wire.Internal(err.Error()))
		return
	}
	writeEnvelope(w, http.StatusOK, env)
}

// writeStoreError translates a store/assign sentinel error into the wire
// taxonomy (spec §7): unknown experiment/agent and no-claimable-work all
// surface as "not-found", since none of them reveal anything an
// unauthorized caller doesn't already know from the request it made.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrUnknownExperiment), errors.Is(err, store.ErrUnknownAgent), errors.Is(err, store.ErrNoClaimableWork):
		writeEnvelope(w, http.StatusNotFound, wire.NotFound())
	case errors.Is(err, store.ErrIllegalTransition):
		writeEnvelope(w, http.StatusInternalServerError, wire.Internal(err.Error()))
	case wire.IsKnownTransient(err.Error()):
		writeEnvelope(w, http.StatusServiceUnavailable, wire.SlowDown())
	default:
		writeEnvelope(w, http.StatusInternalServerError, wire.Internal(err.Error()))
	}
}
