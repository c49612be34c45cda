// Package runtime defines the execution contract threaded through every
// pipeline step: Context and StepResult.
package runtime

import (
	"context"
	"time"
)

/*
Context is the per-video, single-run scratch space threaded through a
pipeline run. Immutable fields (VideoID, URL, StartedAt, Metadata) are set
once at construction; Results accumulates as each step runs.

Steps never hold a reference to the Pipeline Runner or to other steps —
Context, plus the adapters a step was constructed with, is the entire
execution contract.
*/
type Context struct {
	Ctx       context.Context
	VideoID   string
	URL       string
	StartedAt time.Time
	Metadata  map[string]interface{}
	Results   map[string]StepResult
}

// New constructs a Context for a single pipeline run over videoID/url.
// metadata is caller-provided (e.g. source_type, import_method,
// recommendation_weight) and is never mutated by the runner itself.
func New(ctx context.Context, videoID, url string, metadata map[string]interface{}) *Context {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	return &Context{
		Ctx:       ctx,
		VideoID:   videoID,
		URL:       url,
		StartedAt: time.Now().UTC(),
		Metadata:  metadata,
		Results:   map[string]StepResult{},
	}
}

// Get returns a caller-provided metadata value and whether it was present.
func (c *Context) Get(key string) (interface{}, bool) {
	v, ok := c.Metadata[key]
	return v, ok
}

// Set records a value in Metadata. Steps use this to pass secondary values
// to downstream steps (e.g. fetch_transcript emitting timed_transcript).
func (c *Context) Set(key string, value interface{}) {
	c.Metadata[key] = value
}

// Result returns the recorded StepResult for name, if any step has run under
// that name yet.
func (c *Context) Result(name string) (StepResult, bool) {
	r, ok := c.Results[name]
	return r, ok
}

// StepResult is the outcome of a single step invocation: {value, success,
// error, duration_ms, cached}.
type StepResult struct {
	Value      interface{}
	Success    bool
	Err        error
	DurationMS int64
	Cached     bool
}

// Ok constructs a successful StepResult carrying value.
func Ok(value interface{}) StepResult {
	return StepResult{Value: value, Success: true}
}

// OkCached constructs a successful StepResult that was served from cache
// rather than freshly computed (skip_cached support).
func OkCached(value interface{}) StepResult {
	return StepResult{Value: value, Success: true, Cached: true}
}

// Fail constructs a failed StepResult carrying err.
func Fail(err error) StepResult {
	return StepResult{Success: false, Err: err}
}

// WithDuration returns a copy of r with DurationMS set.
func (r StepResult) WithDuration(d time.Duration) StepResult {
	r.DurationMS = d.Milliseconds()
	return r
}
