package models

import (
	"strings"
	"unicode"
)

// nested field names that do not map to a top-level key.
var clearPaths = map[string][]string{
	"StatusText":        {"status", "text"},
	"StatusPresence":    {"status", "presence"},
	"ProfileContent":    {"profile", "content"},
	"ProfileBackground": {"profile", "background"},
}

// FieldPath converts a field name from an update frame's "clear" list
// (e.g. "DefaultPermissions") into the JSON path it removes
// (["default_permissions"]).
func FieldPath(name string) []string {
	if p, ok := clearPaths[name]; ok {
		return p
	}
	return []string{snakeCase(name)}
}

func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
