package processor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/poiesic/importer/source"
)

// LegacyVersion is the version assumed for indices whose name carries no
// recognizable version, and the fallback for versions without a processor.
const LegacyVersion = "8.2"

// versionSegment is the position of the engine version in an index name:
// <prefix>_<alias>_<version>_<suffix>.
const versionSegment = 2

// ExtractVersion returns the "major.minor" engine version encoded in an index
// name, or LegacyVersion when the name does not carry one.
func ExtractVersion(indexName string) string {
	seg := source.IndexSegment(indexName, versionSegment)
	if seg == "" {
		return LegacyVersion
	}

	parts := strings.SplitN(seg, ".", 3)
	if len(parts) < 2 {
		return LegacyVersion
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil || major < 0 {
		return LegacyVersion
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil || minor < 0 {
		return LegacyVersion
	}
	return fmt.Sprintf("%d.%d", major, minor)
}
