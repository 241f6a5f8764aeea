package names

import "regexp"

// TablePrefix is prepended to every vertical partition table name.
const TablePrefix = "VP_"

var (
	illegal    = regexp.MustCompile(`[^A-Za-z0-9_]`)
	identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Sanitize replaces every character that is not an ASCII letter, digit or
// underscore with an underscore.
func Sanitize(raw string) string {
	return illegal.ReplaceAllString(raw, "_")
}

// TableName returns the vertical partition table name for a predicate.
func TableName(predicate string) string {
	return TablePrefix + Sanitize(predicate)
}

// ValidNamespace reports whether name can be used as a catalog namespace as is.
func ValidNamespace(name string) bool {
	return identifier.MatchString(name)
}
