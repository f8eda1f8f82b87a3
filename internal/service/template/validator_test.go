package template

import (
	"errors"
	"strings"
	"testing"

	"github.com/brokerdesk/campaign-engine/internal/domain"
)

func validTemplate() *domain.Template {
	return &domain.Template{
		Name:     "Birthday greeting",
		Category: "birthday",
		Subject:  "Happy birthday, {{ first_name }}!",
		Bodies: map[domain.Channel]string{
			domain.ChannelEmail: "Dear {{ first_name }}, best wishes from your agency.",
		},
		Variables: []string{"first_name"},
	}
}

func TestValidateOK(t *testing.T) {
	warnings, err := NewValidator().Validate(validTemplate())
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
}

func TestValidateSyntaxError(t *testing.T) {
	tpl := validTemplate()
	tpl.Bodies[domain.ChannelEmail] = "{% if first_name %}no closing tag"
	if _, err := NewValidator().Validate(tpl); !errors.Is(err, ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
}

func TestValidateUndeclaredVariableWarns(t *testing.T) {
	tpl := validTemplate()
	tpl.Bodies[domain.ChannelSMS] = "Hi {{ nickname }}"
	warnings, err := NewValidator().Validate(tpl)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "nickname") {
		t.Fatalf("expected undeclared-variable warning, got %v", warnings)
	}
}

func TestValidateMissingFields(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*domain.Template)
	}{
		{"no name", func(tpl *domain.Template) { tpl.Name = "" }},
		{"no category", func(tpl *domain.Template) { tpl.Category = "" }},
		{"no bodies", func(tpl *domain.Template) { tpl.Bodies = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tpl := validTemplate()
			tc.mutate(tpl)
			if _, err := NewValidator().Validate(tpl); !errors.Is(err, ErrValidation) {
				t.Fatalf("want ErrValidation, got %v", err)
			}
		})
	}
}

func TestValidateLiquidControlFlowAllowed(t *testing.T) {
	tpl := validTemplate()
	tpl.Bodies[domain.ChannelEmail] = "{% if first_name %}Hi {{ first_name }}{% else %}Hello{% endif %}"
	warnings, err := NewValidator().Validate(tpl)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("keywords must not warn: %v", warnings)
	}
}
