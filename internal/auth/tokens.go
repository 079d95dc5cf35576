// Package auth implements the token store and ACL (spec component C1): a
// static, operator-managed map from bearer token to the principal it
// authorizes, loaded once from a YAML file in the style of the teacher's
// agents.LoadTeamsConfig.
package auth

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Kind distinguishes the two principal classes spec §4.1 names: an agent
// identity (may claim and report on experiments) and an admin identity.
// The coordinator's agent endpoints accept only agent principals; no
// endpoint in this repository accepts an admin principal.
type Kind string

const (
	KindAgent Kind = "agent"
	KindAdmin Kind = "admin"
)

// Principal is what a bearer token resolves to.
type Principal struct {
	Name string `yaml:"name"`
	Kind Kind   `yaml:"kind"`
}

// ErrUnauthorized is returned by Resolve for a token with no matching
// entry. The HTTP layer translates it to the wire "unauthorized" envelope
// (spec §6) without leaking which tokens are valid.
var ErrUnauthorized = errors.New("auth: token not recognized")

// fileEntry mirrors one row of the on-disk token map.
type fileEntry struct {
	Token string `yaml:"token"`
	Name  string `yaml:"name"`
	Kind  Kind   `yaml:"kind"`
}

// tokenFile is the top-level shape of the YAML token map (spec §10.3).
type tokenFile struct {
	Tokens []fileEntry `yaml:"tokens"`
}

// Store is the in-memory token -> principal map, immutable after Load.
type Store struct {
	byToken map[string]Principal
}

// Load reads and parses a YAML token map from path. It does not watch the
// file; an operator restarts the coordinator to rotate tokens, matching
// the spec's "static token map, no self-service rotation" wording.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}

	var parsed tokenFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse token file: %w", err)
	}

	byToken := make(map[string]Principal, len(parsed.Tokens))
	for _, e := range parsed.Tokens {
		kind := e.Kind
		if kind == "" {
			kind = KindAgent
		}
		byToken[e.Token] = Principal{Name: e.Name, Kind: kind}
	}
	return &Store{byToken: byToken}, nil
}

// Resolve looks up the bearer token extracted from an
// "Authorization: CraterToken <token>" header (spec §6).
func (s *Store) Resolve(token string) (Principal, error) {
	p, ok := s.byToken[token]
	if !ok {
		return Principal{}, ErrUnauthorized
	}
	return p, nil
}

// IsAdmin reports whether the principal has the admin kind.
func (p Principal) IsAdmin() bool {
	return p.Kind == KindAdmin
}
