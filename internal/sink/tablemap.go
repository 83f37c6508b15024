package sink

import "strings"

// TableFor maps a source topic to its destination table name.
type TableFor func(topic string) string

// NewTableMapper resolves topics through the explicit mapping first and falls
// back to normalizing the topic into a legal identifier.
func NewTableMapper(m map[string]string) TableFor {
	return func(topic string) string {
		if t, ok := m[topic]; ok {
			return t
		}
		return NormalizeTable(topic)
	}
}

// NormalizeTable lowercases the topic and replaces every rune that cannot
// appear in an unquoted identifier with an underscore.
func NormalizeTable(topic string) string {
	var b strings.Builder
	b.Grow(len(topic))
	for i, r := range strings.ToLower(topic) {
		switch {
		case r >= 'a' && r <= 'z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
