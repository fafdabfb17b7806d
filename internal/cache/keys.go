package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// selectFields picks the payload fields that participate in the cache key.
// A task with a declared allowlist contributes exactly those fields; every
// other task contributes all fields minus the global volatile blocklist, so
// incidental request metadata never fragments the cache.
func selectFields(payload map[string]any, allowlist, volatile []string) map[string]any {
	selected := make(map[string]any, len(payload))
	if len(allowlist) > 0 {
		for _, field := range allowlist {
			if v, ok := payload[field]; ok {
				selected[field] = v
			}
		}
		return selected
	}

	blocked := make(map[string]bool, len(volatile))
	for _, field := range volatile {
		blocked[field] = true
	}
	for field, v := range payload {
		if !blocked[field] {
			selected[field] = v
		}
	}
	return selected
}

// entityID returns the first configured entity field present in the payload,
// or "-" when none is. It is embedded in the key so one entity's entries can
// be invalidated without waiting for TTL.
func entityID(payload map[string]any, entityFields []string) string {
	for _, field := range entityFields {
		if v, ok := payload[field]; ok && v != nil {
			return fmt.Sprintf("%v", v)
		}
	}
	return "-"
}

// buildKey derives the cache key: taskTag:modelKey:entityID:hash16, where
// hash16 is the first 16 hex characters of a sha256 over the task tag, model
// key, and the canonical JSON of the selected payload fields. json.Marshal
// writes map keys in sorted order, which makes the encoding canonical.
func buildKey(taskTag, modelKey string, payload map[string]any, allowlist, volatile, entityFields []string) (string, error) {
	selected := selectFields(payload, allowlist, volatile)
	canonical, err := json.Marshal(selected)
	if err != nil {
		return "", fmt.Errorf("canonicalize cache fields for task %s: %w", taskTag, err)
	}

	sum := sha256.Sum256([]byte(taskTag + "\x00" + modelKey + "\x00" + string(canonical)))
	hash16 := hex.EncodeToString(sum[:])[:16]

	return taskTag + ":" + modelKey + ":" + entityID(payload, entityFields) + ":" + hash16, nil
}
