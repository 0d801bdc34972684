package accessgrants

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// validText exige UTF-8 válido: los stores (CBOR, text de postgres) no
// aceptan otra cosa y un registro ilegible rompe los listados del paciente.
func validText(field, v string) error {
	if !utf8.ValidString(v) {
		return fmt.Errorf("%w: %s is not valid UTF-8", ErrValidation, field)
	}
	return nil
}

// normalizeScope recorta, descarta vacíos y deduplica (case-insensitive)
// manteniendo el orden del pedido. Rechaza caracteres de control: el
// separador de scopeKey no puede aparecer dentro de una categoría.
func normalizeScope(in []string) ([]string, error) {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))

	for _, raw := range in {
		if err := validText("scope", raw); err != nil {
			return nil, err
		}
		s := strings.Join(strings.Fields(raw), " ")
		if strings.IndexFunc(s, unicode.IsControl) >= 0 {
			return nil, fmt.Errorf("%w: scope %q contains control characters", ErrValidation, s)
		}
		if s == "" {
			continue
		}
		k := strings.ToLower(s)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: scope must not be empty", ErrValidation)
	}
	return out, nil
}

func scopeKey(scope []string) string {
	keys := make([]string, 0, len(scope))
	for _, s := range scope {
		keys = append(keys, strings.ToLower(strings.TrimSpace(s)))
	}
	sort.Strings(keys)
	return strings.Join(keys, "\x1f")
}

func equalFoldTrim(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
