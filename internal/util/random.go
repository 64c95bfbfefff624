// Package util provides utility functions for the StayPilot application.
package util

import (
	"math/rand/v2"
	"strings"
)

// GenerateRandomID generates a random ID with the specified prefix and hex length.
// The returned ID will be in the format: "{prefix}{hex_string}".
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// GenerateRandomHex generates a random hexadecimal string of the specified length.
// Uses math/rand/v2; these IDs are identifiers, not secrets.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}

	const hexChars = "0123456789abcdef"
	var builder strings.Builder
	builder.Grow(length)

	for i := 0; i < length; i++ {
		builder.WriteByte(hexChars[rand.IntN(16)])
	}

	return builder.String()
}

// GenerateRuleID generates a unique automation rule ID with "rule_" prefix.
func GenerateRuleID() string {
	return GenerateRandomID("rule_", 32)
}

// GenerateExecutionID generates a unique execution record ID with "exec_" prefix.
func GenerateExecutionID() string {
	return GenerateRandomID("exec_", 32)
}

// GenerateApprovalID generates a unique approval queue item ID with "apr_" prefix.
func GenerateApprovalID() string {
	return GenerateRandomID("apr_", 32)
}

// GenerateTaskID generates a unique staff task ID with "task_" prefix.
func GenerateTaskID() string {
	return GenerateRandomID("task_", 32)
}

// GenerateMessageID generates a unique conversation message ID with "msg_" prefix.
func GenerateMessageID() string {
	return GenerateRandomID("msg_", 32)
}
