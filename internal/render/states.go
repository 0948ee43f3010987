package render

import "github.com/patchnotes/api/internal/model"

// transitions is the single authoritative table for the render state
// machine. completed and failed are terminal, except that failed may be
// restarted via start (retry). idle and queued may jump straight to
// completed to cover an engine that finishes before the first progress
// poll is observed.
var transitions = map[model.RenderState]map[model.RenderEvent]model.RenderState{
	model.RenderStateIdle: {
		model.RenderEventStart:    model.RenderStateQueued,
		model.RenderEventComplete: model.RenderStateCompleted,
		model.RenderEventFail:     model.RenderStateFailed,
	},
	model.RenderStateQueued: {
		model.RenderEventProgress: model.RenderStateRendering,
		model.RenderEventComplete: model.RenderStateCompleted,
		model.RenderEventFail:     model.RenderStateFailed,
	},
	model.RenderStateRendering: {
		model.RenderEventProgress: model.RenderStateRendering,
		model.RenderEventComplete: model.RenderStateCompleted,
		model.RenderEventFail:     model.RenderStateFailed,
	},
	model.RenderStateCompleted: {},
	model.RenderStateFailed: {
		model.RenderEventStart: model.RenderStateQueued,
	},
}

// Next returns the state reached by applying event in state from, or false
// when the transition is not in the table.
func Next(from model.RenderState, event model.RenderEvent) (model.RenderState, bool) {
	to, ok := transitions[from][event]
	return to, ok
}

// IsTerminal reports whether a state has no outgoing transitions except
// explicit retry.
func IsTerminal(state model.RenderState) bool {
	return state == model.RenderStateCompleted || state == model.RenderStateFailed
}

// IsActive reports whether a render is in flight at the engine.
func IsActive(state model.RenderState) bool {
	return state == model.RenderStateQueued || state == model.RenderStateRendering
}

// ClampPercent bounds a progress value to [0,100].
func ClampPercent(percent int) int {
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}
