// Package fingerprint derives the stable 16-hex-char identifier (C1) used to
// group "the same" error across events.
package fingerprint

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
)

var (
	uuidRE   = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	ipv4RE   = regexp.MustCompile(`\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}`)
	ipv6RE   = regexp.MustCompile(`([0-9a-fA-F]{1,4}:){2,7}[0-9a-fA-F]{1,4}`)
	numberRE = regexp.MustCompile(`\d+`)
	lineNumRE = regexp.MustCompile(`:\d+(?::\d+)?| line \d+`)

	frameworkPrefixes = []string{
		"node_modules/",
		"UIKitCore",
		"CoreFoundation",
		"libdispatch",
		"Foundation",
		"SwiftUI",
		"java.lang.",
		"android.os.",
		"kotlin.",
		"com.apple.",
	}
)

// NormalizeMessage applies the fixed normalization order: UUID sentinel,
// IPv4/IPv6 sentinel, digit-run sentinel, then lowercase+trim. The order is
// part of the fingerprinting contract; reordering changes fingerprints.
func NormalizeMessage(message string) string {
	s := uuidRE.ReplaceAllString(message, "<uuid>")
	s = ipv4RE.ReplaceAllString(s, "<ip>")
	s = ipv6RE.ReplaceAllString(s, "<ip>")
	s = numberRE.ReplaceAllString(s, "<n>")
	return strings.TrimSpace(strings.ToLower(s))
}

// ExtractTopFrame returns the first non-framework stack line with trailing
// line-number noise stripped, or the first non-empty raw line if every line
// looks like framework code.
func ExtractTopFrame(stack string) string {
	if stack == "" {
		return ""
	}

	lines := strings.Split(stack, "\n")
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if isFrameworkLine(trimmed) {
			continue
		}
		cleaned := lineNumRE.ReplaceAllString(trimmed, "")
		return strings.TrimSpace(cleaned)
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func isFrameworkLine(line string) bool {
	for _, prefix := range frameworkPrefixes {
		if strings.Contains(line, prefix) {
			return true
		}
	}
	return false
}

// Compute derives the 16-hex-char fingerprint from the five salient fields,
// joined by ':' and hashed with a 64-bit non-cryptographic hash.
func Compute(source, errorType, routeOrProcedure, message, stack string) string {
	normalized := NormalizeMessage(message)
	topFrame := ExtractTopFrame(stack)

	input := source + ":" + errorType + ":" + routeOrProcedure + ":" + normalized + ":" + topFrame
	hash := xxhash.Sum64String(input)
	return fmt.Sprintf("%016x", hash)
}

var hexRE = regexp.MustCompile(`^[0-9a-fA-F]+$`)

// Resolve implements the client-override rule: a client-supplied
// fingerprint that is a hex string of at least 16 characters wins,
// truncated/lowercased to 16 hex characters; otherwise (empty, shorter, or
// non-hex) the derived value is used.
func Resolve(clientFingerprint, source, errorType, routeOrProcedure, message, stack string) string {
	if clientFingerprint != "" {
		lowered := strings.ToLower(clientFingerprint)
		if len(lowered) >= 16 && hexRE.MatchString(lowered) {
			return lowered[:16]
		}
	}
	return Compute(source, errorType, routeOrProcedure, message, stack)
}
