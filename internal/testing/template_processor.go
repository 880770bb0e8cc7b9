package testing

import (
	"fmt"
	"maps"
	"sync"

	"ccptests/internal/template"
	"ccptests/pkg/logging"
)

// ScenarioContext holds the execution context for a test scenario
// including stored results from previous steps for template variable resolution
type ScenarioContext struct {
	base          map[string]any
	storedResults map[string]any
	mu            sync.RWMutex
}

// NewScenarioContext creates a new scenario execution context. base holds variables
// every template can see, such as the scenario name or the environment settings;
// stored results shadow them.
func NewScenarioContext(base map[string]any) *ScenarioContext {
	return &ScenarioContext{
		base:          maps.Clone(base),
		storedResults: make(map[string]any),
	}
}

// StoreResult stores a step result under the given variable name
func (sc *ScenarioContext) StoreResult(name string, result any) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.storedResults[name] = result
	logging.Debug("TestFramework", "Stored result for variable '%s': %v", name, result)
}

// GetStoredResult retrieves a stored result by variable name
func (sc *ScenarioContext) GetStoredResult(name string) (any, bool) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	result, exists := sc.storedResults[name]
	return result, exists
}

// GetAllStoredResults returns a copy of all stored results for debugging
func (sc *ScenarioContext) GetAllStoredResults() map[string]any {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return maps.Clone(sc.storedResults)
}

// Data returns the variables visible to templates.
func (sc *ScenarioContext) Data() map[string]any {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return template.MergeContexts(sc.base, sc.storedResults)
}

// TemplateProcessor handles template variable resolution in test step arguments
type TemplateProcessor struct {
	context *ScenarioContext
	engine  *template.Engine
}

// NewTemplateProcessor creates a new template processor with the given scenario context
func NewTemplateProcessor(context *ScenarioContext) *TemplateProcessor {
	return &TemplateProcessor{
		context: context,
		engine:  template.New(),
	}
}

// ResolveArgs processes a map of arguments and resolves any template variables
func (tp *TemplateProcessor) ResolveArgs(args map[string]any) (map[string]any, error) {
	if args == nil {
		return nil, nil
	}

	resolved, err := tp.engine.Replace(args, tp.context.Data())
	if err != nil {
		return nil, err
	}

	resolvedMap, ok := resolved.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("template resolution returned unexpected type: %T", resolved)
	}

	logging.Debug("TestFramework", "Template resolution completed. Original: %v, Resolved: %v", args, resolvedMap)
	return resolvedMap, nil
}

// ResolveExpectation resolves templates inside the expected values and texts of a step.
func (tp *TemplateProcessor) ResolveExpectation(expected TestExpectation) (TestExpectation, error) {
	data := tp.context.Data()

	resolveTexts := func(texts []string) ([]string, error) {
		out := make([]string, 0, len(texts))
		for _, text := range texts {
			v, err := tp.engine.Replace(text, data)
			if err != nil {
				return nil, err
			}
			out = append(out, fmt.Sprint(v))
		}
		return out, nil
	}

	var err error
	if expected.Contains, err = resolveTexts(expected.Contains); err != nil {
		return expected, fmt.Errorf("contains: %w", err)
	}
	if expected.NotContains, err = resolveTexts(expected.NotContains); err != nil {
		return expected, fmt.Errorf("not_contains: %w", err)
	}
	if expected.ErrorContains, err = resolveTexts(expected.ErrorContains); err != nil {
		return expected, fmt.Errorf("error_contains: %w", err)
	}

	if len(expected.Values) > 0 {
		values := make(map[string]any, len(expected.Values))
		for path, want := range expected.Values {
			v, err := tp.engine.Replace(want, data)
			if err != nil {
				return expected, fmt.Errorf("values.%s: %w", path, err)
			}
			values[path] = v
		}
		expected.Values = values
	}
	return expected, nil
}
