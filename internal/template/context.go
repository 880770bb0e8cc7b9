package template

import "maps"

// MergeContexts layers template contexts into a new map. Keys of later contexts
// shadow earlier ones, so stored step responses win over scenario variables.
func MergeContexts(contexts ...map[string]any) map[string]any {
	size := 0
	for _, ctx := range contexts {
		size += len(ctx)
	}
	result := make(map[string]any, size)
	for _, ctx := range contexts {
		maps.Copy(result, ctx)
	}
	return result
}
