package main

import (
	"context"
	"encoding/base64"
	"fmt"
)

// sandboxRunner is the boundary to the actual compilation/testing sandbox
// (building a crate under a given toolchain and capturing its log). That
// sandbox is out of scope here, specified only by contract: a real
// deployment wires this interface to whatever builds and runs a crate in
// an isolated environment (container, VM, chroot) and reports back a
// build/test outcome string and a raw log.
type sandboxRunner interface {
	Run(ctx context.Context, toolchain, crate string) (outcome string, logBase64 string, err error)
}

func newSandboxRunner() sandboxRunner {
	return unimplementedRunner{}
}

// unimplementedRunner always reports a build-fail outcome with an empty
// log, since no sandbox is wired in by default. Operators embedding this
// binary in a real deployment replace newSandboxRunner's return value.
type unimplementedRunner struct{}

func (unimplementedRunner) Run(_ context.Context, toolchain, crate string) (string, string, error) {
	msg := fmt.Sprintf("no sandbox runner configured for %s/%s", crate, toolchain)
	return "build-fail", base64.StdEncoding.EncodeToString([]byte(msg)), nil
}
