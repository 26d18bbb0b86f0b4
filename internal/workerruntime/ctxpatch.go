package workerruntime

import "encoding/json"

// ctxPatchOp is one RFC 6902 operation, the shape eventstore's ctx.patched
// projection decodes with evanphx/json-patch.
type ctxPatchOp struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// buildCtxPatch turns a task policy's set_ctx map into a JSON Patch
// document that replaces (or adds, if absent) each named top-level ctx
// field. set_ctx is intentionally flat: spec §4.5 scopes ctx writes to a
// step's own concerns, not arbitrary nested mutation.
func buildCtxPatch(setCtx map[string]any) ([]byte, error) {
	ops := make([]ctxPatchOp, 0, len(setCtx))
	for k, v := range setCtx {
		ops = append(ops, ctxPatchOp{Op: "add", Path: "/" + k, Value: v})
	}
	return json.Marshal(ops)
}
