// Package idhash computes deterministic identifiers for actions and
// suggestions using SHA256, base58-encoded for short human-pasteable IDs.
package idhash

import (
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"

	"adpilot/internal/domain"
)

// shortLen is the number of hash bytes kept before encoding.
const shortLen = 12

// ActionID computes a deterministic action id.
// Formula: SHA256(campaign_id|kind|executed_at_ms), truncated and
// base58-encoded with an "act_" prefix.
func ActionID(campaignID string, kind domain.ActionKind, executedAt int64) string {
	return "act_" + short(fmt.Sprintf("%s|%s|%d", campaignID, string(kind), executedAt))
}

// SuggestionID computes a deterministic suggestion id.
// Formula: SHA256(campaign_id|kind|created_at_ms) with a "sug_" prefix.
func SuggestionID(campaignID string, kind domain.ActionKind, createdAt int64) string {
	return "sug_" + short(fmt.Sprintf("%s|%s|%d", campaignID, string(kind), createdAt))
}

func short(data string) string {
	hash := sha256.Sum256([]byte(data))
	return base58.Encode(hash[:shortLen])
}
