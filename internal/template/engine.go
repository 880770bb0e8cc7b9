package template

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"ccptests/pkg/keypath"
)

var (
	// {{ .step.stdout[0] }} on its own resolves to the referenced value, keeping its type.
	bareReference = regexp.MustCompile(`^\{\{\s*\.([A-Za-z_][A-Za-z0-9_\-\[\]\.]*)\s*\}\}$`)
	// root variable names referenced inside actions
	rootReference = regexp.MustCompile(`(?:^|[\s(|])\.([A-Za-z_][A-Za-z0-9_]*)`)
	actionPattern = regexp.MustCompile(`\{\{(.*?)\}\}`)
)

// Engine renders Go templates embedded in scenario arguments.
//
// Strings that contain no "{{" pass through untouched. A string that is exactly one
// reference such as "{{ .pods.items[0] }}" resolves to the referenced value without
// stringifying it. Anything else is executed as a text/template with the sprig function
// map plus "keypath", and missing keys are errors.
type Engine struct {
	funcs template.FuncMap
}

// New creates a new template engine
func New() *Engine {
	funcs := sprig.TxtFuncMap()
	funcs["keypath"] = func(path string, source any) (any, error) {
		return keypath.GetValue(source, path)
	}
	return &Engine{funcs: funcs}
}

// Replace renders every string found in value, recursing into maps and slices.
func (e *Engine) Replace(value any, data map[string]any) (any, error) {
	switch v := value.(type) {
	case string:
		return e.replaceString(v, data)
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			rendered, err := e.Replace(item, data)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			out[key] = rendered
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			rendered, err := e.Replace(item, data)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = rendered
		}
		return out, nil
	default:
		return value, nil
	}
}

func (e *Engine) replaceString(s string, data map[string]any) (any, error) {
	if !strings.Contains(s, "{{") {
		return s, nil
	}
	if m := bareReference.FindStringSubmatch(s); m != nil {
		v, err := keypath.GetValue(data, m[1])
		if err != nil {
			return nil, fmt.Errorf("template %q: %w", s, err)
		}
		return v, nil
	}
	return e.Render(s, data)
}

// Render executes text as a template against data.
func (e *Engine) Render(text string, data map[string]any) (string, error) {
	tmpl, err := template.New("arg").Funcs(e.funcs).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %q: %w", text, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template %q: %w", text, err)
	}
	return buf.String(), nil
}

// ExtractVariables returns the sorted root variable names referenced by value.
func (e *Engine) ExtractVariables(value any) []string {
	seen := map[string]bool{}
	e.collect(value, seen)

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *Engine) collect(value any, seen map[string]bool) {
	switch v := value.(type) {
	case string:
		for _, action := range actionPattern.FindAllStringSubmatch(v, -1) {
			for _, ref := range rootReference.FindAllStringSubmatch(action[1], -1) {
				seen[ref[1]] = true
			}
		}
	case map[string]any:
		for _, item := range v {
			e.collect(item, seen)
		}
	case []any:
		for _, item := range v {
			e.collect(item, seen)
		}
	}
}

// ValidateContext reports the variables value references that data does not provide.
func (e *Engine) ValidateContext(value any, data map[string]any) error {
	var missing []string
	for _, name := range e.ExtractVariables(value) {
		if _, ok := data[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required variables: %s", strings.Join(missing, ", "))
	}
	return nil
}
