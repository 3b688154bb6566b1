package gcal

import (
	"fmt"
	"regexp"
	"strings"
)

// Known tag keys embedded in event descriptions for later identification.
const (
	TagType    = "TYPE"
	TagPatient = "PATIENT"
	TagPhone   = "PHONE"
	TagUserID  = "USER_ID"
)

var tagKeyOrder = []string{TagType, TagPatient, TagPhone, TagUserID}

var tagLine = regexp.MustCompile(`(?m)^([A-Z_]+)=(.*)$`)

// BuildTagBlock renders a key=value tag block to append after a
// human-readable event description. Empty values are omitted.
func BuildTagBlock(tags map[string]string) string {
	var lines []string
	for _, key := range tagKeyOrder {
		if val, ok := tags[key]; ok && val != "" {
			lines = append(lines, fmt.Sprintf("%s=%s", key, val))
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n")
}

// ParseTagBlock extracts key=value tags out of an event description. The
// block is an advisory side-channel: callers must tolerate missing or
// mangled tags, and no decision may depend on a successful round-trip.
func ParseTagBlock(description string) map[string]string {
	tags := make(map[string]string)
	for _, m := range tagLine.FindAllStringSubmatch(description, -1) {
		tags[m[1]] = strings.TrimSpace(m[2])
	}
	return tags
}
