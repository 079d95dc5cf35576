package store

import "errors"

var (
	ErrUnknownExperiment    = errors.New("store: unknown experiment")
	ErrUnknownAgent         = errors.New("store: unknown agent")
	ErrIllegalTransition    = errors.New("store: illegal status transition")
	ErrNoClaimableWork      = errors.New("store: no claimable experiment for this agent")
)
