package testing

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"ccptests/internal/template"
)

// BaseVariables are the template variables every scenario starts with.
var BaseVariables = []string{"scenario", "run_id", "env", "nodes"}

// requiredArgs lists the arguments an action cannot run without. "a|b" accepts either.
var requiredArgs = map[string][]string{
	"ssh.exec":                {"node", "command"},
	"ssh.exec_all":            {"command"},
	"kube.wait_job":           {"name"},
	"config.set":              {"path", "value|shape"},
	"config.get":              {"path"},
	"ccp.run":                 {"args"},
	"snapshot.revert":         {"name"},
	"stacklight.log_count":    {"query"},
	"stacklight.influx_query": {"db", "query"},
}

// ScenarioValidationResults represents the results of validating multiple scenarios
type ScenarioValidationResults struct {
	TotalScenarios    int                        `json:"total_scenarios"`
	ValidScenarios    int                        `json:"valid_scenarios"`
	TotalErrors       int                        `json:"total_errors"`
	ScenarioResults   []ScenarioValidationResult `json:"scenario_results"`
	ValidationSummary map[string]int             `json:"validation_summary"`
}

// ScenarioValidationResult represents the validation result for a single scenario
type ScenarioValidationResult struct {
	ScenarioName string                 `json:"scenario_name"`
	Valid        bool                   `json:"valid"`
	Errors       []ValidationError      `json:"errors,omitempty"`
	StepResults  []StepValidationResult `json:"step_results"`
}

// StepValidationResult represents the validation result for a single step
type StepValidationResult struct {
	StepID string            `json:"step_id"`
	Action string            `json:"action"`
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError represents a validation error
type ValidationError struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	Field      string `json:"field,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// ValidateScenarios checks scenarios without running them: every action must be
// registered, required arguments present, and every template variable defined by
// the base variables or an earlier step's store.
func ValidateScenarios(scenarios []TestScenario, actions *Registry) *ScenarioValidationResults {
	results := &ScenarioValidationResults{
		TotalScenarios:    len(scenarios),
		ScenarioResults:   make([]ScenarioValidationResult, 0, len(scenarios)),
		ValidationSummary: make(map[string]int),
	}
	engine := template.New()

	for _, scenario := range scenarios {
		scenarioResult := validateScenario(scenario, actions, engine)
		results.ScenarioResults = append(results.ScenarioResults, scenarioResult)

		if scenarioResult.Valid {
			results.ValidScenarios++
		} else {
			results.TotalErrors += len(scenarioResult.Errors)
		}

		for _, stepResult := range scenarioResult.StepResults {
			if stepResult.Valid {
				results.ValidationSummary["valid_steps"]++
				continue
			}
			results.ValidationSummary["invalid_steps"]++
			for _, err := range stepResult.Errors {
				results.ValidationSummary[err.Type]++
			}
		}
	}
	return results
}

func validateScenario(scenario TestScenario, actions *Registry, engine *template.Engine) ScenarioValidationResult {
	result := ScenarioValidationResult{
		ScenarioName: scenario.Name,
		Valid:        true,
		StepResults:  make([]StepValidationResult, 0, len(scenario.Steps)+len(scenario.Cleanup)),
	}

	known := make(map[string]bool)
	for _, v := range BaseVariables {
		known[v] = true
	}

	steps := append(append([]TestStep(nil), scenario.Steps...), scenario.Cleanup...)
	for _, step := range steps {
		stepResult := validateStep(step, actions, engine, known)
		result.StepResults = append(result.StepResults, stepResult)

		if step.Store != "" {
			known[step.Store] = true
		}

		if stepResult.Valid {
			continue
		}
		result.Valid = false
		for _, err := range stepResult.Errors {
			result.Errors = append(result.Errors, ValidationError{
				Type:       err.Type,
				Message:    fmt.Sprintf("Step %s: %s", step.ID, err.Message),
				Field:      err.Field,
				Suggestion: err.Suggestion,
			})
		}
	}
	return result
}

func validateStep(step TestStep, actions *Registry, engine *template.Engine, known map[string]bool) StepValidationResult {
	result := StepValidationResult{
		StepID: step.ID,
		Action: step.Action,
		Valid:  true,
	}
	fail := func(e ValidationError) {
		result.Valid = false
		result.Errors = append(result.Errors, e)
	}

	if actions != nil && !actions.Has(step.Action) {
		e := ValidationError{
			Type:    "unknown_action",
			Message: fmt.Sprintf("Action '%s' is not registered", step.Action),
			Field:   "action",
		}
		if similar := similarActions(step.Action, actions.Names()); len(similar) > 0 {
			e.Suggestion = "Did you mean " + strings.Join(similar, ", ") + "?"
		}
		fail(e)
	}

	for _, arg := range requiredArgs[step.Action] {
		alternatives := strings.Split(arg, "|")
		if !slices.ContainsFunc(alternatives, func(a string) bool {
			_, ok := step.Args[a]
			return ok
		}) {
			fail(ValidationError{
				Type:    "missing_argument",
				Message: fmt.Sprintf("Argument '%s' is required by '%s'", strings.Join(alternatives, "' or '"), step.Action),
				Field:   "args." + alternatives[0],
			})
		}
	}

	if step.Store != "" && slices.Contains(BaseVariables, step.Store) {
		fail(ValidationError{
			Type:       "reserved_store",
			Message:    fmt.Sprintf("Store name '%s' shadows a built-in variable", step.Store),
			Field:      "store",
			Suggestion: "Pick a name other than " + strings.Join(BaseVariables, ", "),
		})
	}

	used := engine.ExtractVariables(map[string]any{
		"args":           step.Args,
		"contains":       toAnySlice(step.Expected.Contains),
		"not_contains":   toAnySlice(step.Expected.NotContains),
		"error_contains": toAnySlice(step.Expected.ErrorContains),
		"values":         step.Expected.Values,
	})
	for _, name := range used {
		if known[name] {
			continue
		}
		fail(ValidationError{
			Type:       "undefined_variable",
			Message:    fmt.Sprintf("Template variable '%s' is not defined at this point", name),
			Suggestion: "Store it in an earlier step with 'store: " + name + "'",
		})
	}
	return result
}

// similarActions returns registered actions in the same group as name.
func similarActions(name string, registered []string) []string {
	group, _, _ := strings.Cut(name, ".")
	var out []string
	for _, r := range registered {
		if strings.HasPrefix(r, group+".") {
			out = append(out, r)
		}
	}
	return out
}

func toAnySlice(in []string) []any {
	out := make([]any, 0, len(in))
	for _, s := range in {
		out = append(out, s)
	}
	return out
}

// FormatValidationResults formats validation results for CLI output
func FormatValidationResults(results *ScenarioValidationResults, verbose bool) string {
	var output strings.Builder

	output.WriteString("🔍 Scenario Validation Results\n")
	output.WriteString("══════════════════════════════\n")
	output.WriteString(fmt.Sprintf("Total scenarios: %d\n", results.TotalScenarios))
	output.WriteString(fmt.Sprintf("Valid scenarios: %d\n", results.ValidScenarios))
	output.WriteString(fmt.Sprintf("Invalid scenarios: %d\n", results.TotalScenarios-results.ValidScenarios))
	output.WriteString(fmt.Sprintf("Total errors: %d\n", results.TotalErrors))

	if len(results.ValidationSummary) > 0 {
		output.WriteString("\n📊 Validation Summary:\n")
		keys := make([]string, 0, len(results.ValidationSummary))
		for k := range results.ValidationSummary {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			output.WriteString(fmt.Sprintf("  %s: %d\n", k, results.ValidationSummary[k]))
		}
	}

	if verbose || results.TotalErrors > 0 {
		output.WriteString("\n📋 Scenario Details:\n")
		for _, scenarioResult := range results.ScenarioResults {
			status := "✅"
			if !scenarioResult.Valid {
				status = "❌"
			}
			output.WriteString(fmt.Sprintf("  %s %s\n", status, scenarioResult.ScenarioName))

			for _, err := range scenarioResult.Errors {
				output.WriteString(fmt.Sprintf("    • %s: %s\n", err.Type, err.Message))
				if err.Suggestion != "" {
					output.WriteString(fmt.Sprintf("      💡 %s\n", err.Suggestion))
				}
			}
		}
	}

	return output.String()
}
