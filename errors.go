package yieldboard

import "errors"

var (
	// ErrNoAssets is returned when a portfolio has no holdings to analyse.
	ErrNoAssets = errors.New("no assets provided")

	// ErrUnknownChain is returned for a chain id missing from the registry.
	ErrUnknownChain = errors.New("unknown chain")

	// ErrNoRPC is returned when a network has no RPC URL configured.
	ErrNoRPC = errors.New("network has no RPC URL")

	// ErrCancelled is returned by [Run.Wait] for a job cancelled before it
	// produced an outcome.
	ErrCancelled = errors.New("job cancelled")

	errNoCaptureGroup = errors.New("pattern must contain a capture group")
)
