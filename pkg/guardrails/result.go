// Copyright 2026 © The Railguard Authors
// SPDX-License-Identifier: Apache-2.0

package guardrails

// Info carries the well-known result fields plus an open extension map.
// Checks may pre-populate any field; the orchestrator stamps the remaining
// ones after execution, merging without overwriting.
type Info struct {
	Stage               Stage               `json:"stage,omitempty"`
	CheckName           string              `json:"check_name,omitempty"`
	MediaType           string              `json:"media_type,omitempty"`
	DetectedContentType string              `json:"detected_content_type,omitempty"`
	Confidence          float64             `json:"confidence,omitempty"`
	Reason              string              `json:"reason,omitempty"`
	DetectedEntities    map[string][]string `json:"detected_entities,omitempty"`
	Error               string              `json:"error,omitempty"`
	Extra               map[string]any      `json:"extra,omitempty"`
}

// Result is the outcome of a single check invocation.
type Result struct {
	// TripwireTriggered indicates the check determined the content
	// violates policy.
	TripwireTriggered bool `json:"tripwire_triggered"`

	// Info describes the verdict.
	Info Info `json:"info"`

	// ExecutionFailed is set when the check implementation itself failed;
	// a failed check never triggers a tripwire (fail-open by default).
	ExecutionFailed bool `json:"execution_failed,omitempty"`

	// OriginalError is the underlying failure when ExecutionFailed is set.
	OriginalError error `json:"-"`
}

// stamp fills orchestration fields on a result without overwriting anything
// a check already produced.
func (r *Result) stamp(stage Stage, checkName, mediaType, detectedContentType string) {
	if r.Info.Stage == "" {
		r.Info.Stage = stage
	}
	if r.Info.CheckName == "" {
		r.Info.CheckName = checkName
	}
	if r.Info.MediaType == "" {
		r.Info.MediaType = mediaType
	}
	if r.Info.DetectedContentType == "" {
		r.Info.DetectedContentType = detectedContentType
	}
}

// ResultSet groups stage results for one guarded turn.
type ResultSet struct {
	Preflight []Result `json:"preflight"`
	Input     []Result `json:"input"`
	Output    []Result `json:"output"`
}

// All returns every result in pipeline order: pre_flight, input, output.
func (rs ResultSet) All() []Result {
	all := make([]Result, 0, len(rs.Preflight)+len(rs.Input)+len(rs.Output))
	all = append(all, rs.Preflight...)
	all = append(all, rs.Input...)
	all = append(all, rs.Output...)
	return all
}

// AnyTripped reports whether any check in any stage triggered its tripwire.
func (rs ResultSet) AnyTripped() bool {
	for _, r := range rs.All() {
		if r.TripwireTriggered {
			return true
		}
	}
	return false
}

// Triggered returns the tripped results, in pipeline order.
func (rs ResultSet) Triggered() []Result {
	var tripped []Result
	for _, r := range rs.All() {
		if r.TripwireTriggered {
			tripped = append(tripped, r)
		}
	}
	return tripped
}
