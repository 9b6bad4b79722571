package source

import (
	"path"
	"regexp"
	"strings"

	"github.com/poiesic/importer/core"
)

// DefaultIndexPrefix is the prefix the engine exporter writes by default.
const DefaultIndexPrefix = "zeebe-record"

const indexSeparator = "_"

// IndexName builds the name of one versioned index.
func IndexName(prefix string, valueType core.ValueType, engineVersion, suffix string) string {
	parts := []string{prefix, valueType.Alias(), engineVersion}
	if suffix != "" {
		parts = append(parts, suffix)
	}
	return strings.Join(parts, indexSeparator)
}

// IndexPattern returns the wildcard pattern matching every index of a value type.
func IndexPattern(prefix string, valueType core.ValueType) string {
	return prefix + indexSeparator + valueType.Alias() + indexSeparator + "*"
}

// MatchPattern reports whether an index name matches a wildcard pattern.
func MatchPattern(pattern, indexName string) bool {
	ok, err := path.Match(pattern, indexName)
	return err == nil && ok
}

// PatternRegexp converts a wildcard index pattern to an anchored regular expression.
func PatternRegexp(pattern string) string {
	var b strings.Builder
	b.WriteString("^")
	for i, part := range strings.Split(pattern, "*") {
		if i > 0 {
			b.WriteString(".*")
		}
		b.WriteString(regexp.QuoteMeta(part))
	}
	b.WriteString("$")
	return b.String()
}

// IndexSegment returns the n-th "_" separated segment of an index name, or ""
// when the name has fewer segments.
func IndexSegment(indexName string, n int) string {
	parts := strings.Split(indexName, indexSeparator)
	if n < 0 || n >= len(parts) {
		return ""
	}
	return parts[n]
}
