package sandbox

import "context"

// Executor is the uniform contract every isolation tier implements.
//
// Probe must be cheap and idempotent: it reports whether the underlying
// mechanism is usable on this host right now. It never panics; any internal
// failure collapses into the returned error, whose text becomes the
// diagnostic detail shown in tier status.
//
// Execute spawns an isolated context, writes the request's code into it, runs
// it under the language's interpreter, enforces the limits, captures combined
// stdout+stderr, and tears the context down unconditionally before returning.
//
// The return contract carries the chain's fallthrough rule: a non-nil error
// means the isolation mechanism itself failed and the chain should advance;
// a non-nil Outcome — even one holding the user program's traceback, a
// non-zero exit diagnostic, or a timeout — means the tier worked and the
// chain stops here.
type Executor interface {
	// Tier returns this executor's fixed identity in the chain.
	Tier() Tier

	// Probe reports availability. nil means dispatchable.
	Probe(ctx context.Context) error

	// Supports reports whether this tier can run the given language.
	// The chain never dispatches an unsupported language to a tier.
	Supports(lang Language) bool

	// Execute runs the code under this tier's isolation mechanism.
	Execute(ctx context.Context, req Request, limits Limits) (*Outcome, error)
}
