package password

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Policy de fortaleza. Se aplica al generar el hash del admin (CLI hash-password).
type Policy struct {
	MinLength     int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
}

// AdminPolicy: 12+ caracteres con minúscula y dígito.
var AdminPolicy = Policy{MinLength: 12, RequireLower: true, RequireDigit: true}

// Violations devuelve las reglas que s no cumple; vacío = aceptada.
func (p Policy) Violations(s string) []string {
	var out []string
	if utf8.RuneCountInString(s) < p.MinLength {
		out = append(out, "too_short")
	}
	rules := []struct {
		on    bool
		name  string
		match func(rune) bool
	}{
		{p.RequireUpper, "missing_upper", unicode.IsUpper},
		{p.RequireLower, "missing_lower", unicode.IsLower},
		{p.RequireDigit, "missing_digit", unicode.IsDigit},
		{p.RequireSymbol, "missing_symbol", func(r rune) bool { return unicode.IsPunct(r) || unicode.IsSymbol(r) }},
	}
	for _, rule := range rules {
		if rule.on && strings.IndexFunc(s, rule.match) < 0 {
			out = append(out, rule.name)
		}
	}
	return out
}
