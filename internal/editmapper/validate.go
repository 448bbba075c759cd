package editmapper

// Validate runs the stateless validation pipeline over already-resolved
// edits (spec.md §4.7): clamp per-edit deltas, truncate to maxEdits,
// moving the excess into rejected. Malformed/unresolved rejection already
// happened during Resolve; this stage only handles clamping and the
// count cap.
func (m *Mapper) Validate(r Result) Result {
	out := Result{RejectedEdits: append([]Rejected(nil), r.RejectedEdits...)}

	for _, e := range r.ValidEdits {
		clamped := clampEdit(e)
		out.ValidEdits = append(out.ValidEdits, clamped)
		if clamped.Clamped {
			out.ClampedEdits = append(out.ClampedEdits, clamped)
		}
	}

	if len(out.ValidEdits) > maxEdits {
		excess := out.ValidEdits[maxEdits:]
		out.ValidEdits = out.ValidEdits[:maxEdits]
		for _, e := range excess {
			out.RejectedEdits = append(out.RejectedEdits, Rejected{
				Reason: "Exceeded maximum edits limit",
			}.withEdit(e))
		}
	}

	return out
}

// withEdit is a small convenience so the truncated-edit rejection carries
// some context even though Rejected.Operation is refiner-shaped, not
// internal-edit-shaped; we fold the edit's element id into the reason.
func (r Rejected) withEdit(e Edit) Rejected {
	if e.ElementID != "" {
		r.Reason = r.Reason + " (elementId=" + e.ElementID + ")"
	}
	return r
}

// clampEdit clamps move/resize deltas to |d| <= maxDelta, per spec.md
// §4.7 step 2 ("Clamped edits are retained and marked").
func clampEdit(e Edit) Edit {
	switch e.Kind {
	case EditMove, EditResize:
		clamped := false
		e.DX, clamped = clampDelta(e.DX), clamped || isClamped(e.DX)
		e.DY, clamped = clampDelta(e.DY), clamped || isClamped(e.DY)
		e.DW, clamped = clampDelta(e.DW), clamped || isClamped(e.DW)
		e.DH, clamped = clampDelta(e.DH), clamped || isClamped(e.DH)
		e.Clamped = clamped
	}
	return e
}

func isClamped(d float64) bool {
	return d > maxDelta || d < -maxDelta
}

func clampDelta(d float64) float64 {
	if d > maxDelta {
		return maxDelta
	}
	if d < -maxDelta {
		return -maxDelta
	}
	return d
}
