package event

import (
	"fmt"
	"strings"
)

// Dataschema is the parsed form of an event's dataschema tag, the string
// "<contract-uri>/<version>".
type Dataschema struct {
	Uri     string
	Version string
}

// String formats the canonical "<uri>/<version>" wire form.
func (d Dataschema) String() string {
	return d.Uri + "/" + d.Version
}

// ParseDataschema splits a dataschema tag into its uri and version parts.
// It returns false if the tag is empty or has no version separator.
func ParseDataschema(tag string) (Dataschema, bool) {
	if tag == "" {
		return Dataschema{}, false
	}
	idx := strings.LastIndex(tag, "/")
	if idx <= 0 || idx == len(tag)-1 {
		return Dataschema{}, false
	}
	return Dataschema{Uri: tag[:idx], Version: tag[idx+1:]}, true
}

// FormatDataschema renders the canonical tag for a resolved contract version.
func FormatDataschema(uri, version string) string {
	return fmt.Sprintf("%s/%s", uri, version)
}
