package template

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/osteele/liquid"

	"github.com/brokerdesk/campaign-engine/internal/domain"
)

// Validator checks template bodies for Liquid syntax errors and for
// references to variables the author did not declare.
type Validator struct {
	engine *liquid.Engine
}

func NewValidator() *Validator {
	engine := liquid.NewEngine()

	// Fallback value: {{ first_name | default: "valued client" }}
	engine.RegisterFilter("default", func(value interface{}, fallback string) interface{} {
		if value == nil {
			return fallback
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return fallback
		}
		return value
	})

	// Premium and payment amounts: {{ premium | currency }}
	engine.RegisterFilter("currency", func(value interface{}) string {
		switch v := value.(type) {
		case float64:
			return fmt.Sprintf("$%.2f", v)
		case int:
			return fmt.Sprintf("$%.2f", float64(v))
		default:
			return fmt.Sprintf("%v", value)
		}
	})

	return &Validator{engine: engine}
}

var varPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_.]*?)(?:\s*\||\s*\}\})`)

// Validate checks every channel body of a template. Syntax errors are
// fatal; references to undeclared variables are returned as warnings so
// an operator can fix the declaration or the body.
func (v *Validator) Validate(t *domain.Template) ([]string, error) {
	if t.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if t.Category == "" {
		return nil, fmt.Errorf("%w: category is required", ErrValidation)
	}
	if len(t.Bodies) == 0 {
		return nil, fmt.Errorf("%w: at least one channel body is required", ErrValidation)
	}

	declared := make(map[string]bool, len(t.Variables))
	for _, name := range t.Variables {
		declared[name] = true
	}

	var warnings []string
	for ch, body := range t.Bodies {
		if _, err := v.engine.ParseString(body); err != nil {
			return nil, fmt.Errorf("%w: %s body: %v", ErrValidation, ch, err)
		}
		warnings = append(warnings, undeclaredVars(body, declared, string(ch))...)
	}
	if t.Subject != "" {
		if _, err := v.engine.ParseString(t.Subject); err != nil {
			return nil, fmt.Errorf("%w: subject: %v", ErrValidation, err)
		}
		warnings = append(warnings, undeclaredVars(t.Subject, declared, "subject")...)
	}
	return warnings, nil
}

func undeclaredVars(body string, declared map[string]bool, where string) []string {
	var warnings []string
	seen := make(map[string]bool)
	for _, match := range varPattern.FindAllStringSubmatch(body, -1) {
		name := strings.TrimSpace(match[1])
		// Only the root of a dotted path is declared.
		if i := strings.IndexByte(name, '.'); i > 0 {
			name = name[:i]
		}
		if seen[name] || liquidKeywords[name] {
			continue
		}
		seen[name] = true
		if !declared[name] {
			warnings = append(warnings, fmt.Sprintf("%s references undeclared variable %q", where, name))
		}
	}
	return warnings
}

var liquidKeywords = map[string]bool{
	"if": true, "elsif": true, "else": true, "endif": true,
	"unless": true, "endunless": true,
	"case": true, "when": true, "endcase": true,
	"for": true, "endfor": true, "break": true, "continue": true,
	"assign": true, "capture": true, "endcapture": true,
	"forloop": true, "empty": true,
	"true": true, "false": true, "nil": true, "null": true,
}
