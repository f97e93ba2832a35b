package config

import (
	"regexp"
	"strings"
)

var (
	validConvIDRe   = regexp.MustCompile(`^[a-z0-9][a-z0-9_.:-]{0,127}$`)
	invalidConvRune = regexp.MustCompile(`[^a-z0-9_.:-]+`)
	edgeDashes      = regexp.MustCompile(`^-+|-+$`)
)

// NormalizeConversationID converts a host-provided conversation key into
// a stable identifier: lowercase, max 128 chars, [a-z0-9_.:-] only,
// invalid runs collapsed to "-", edge dashes stripped.
func NormalizeConversationID(id string) string {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return ""
	}

	lower := strings.ToLower(trimmed)
	if validConvIDRe.MatchString(lower) {
		return lower
	}

	result := invalidConvRune.ReplaceAllString(lower, "-")
	result = edgeDashes.ReplaceAllString(result, "")
	if len(result) > 128 {
		result = result[:128]
	}
	return result
}
