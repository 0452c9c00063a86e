package dedup

import (
	"encoding/json"
	"strings"

	"github.com/rcliao/convo-memory/internal/model"
)

// ParseTopics reads a topic list written either as a JSON array or as a
// comma separated list. Anything unparseable yields the empty set.
func ParseTopics(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []string{}
	}
	if strings.HasPrefix(raw, "[") {
		var topics []string
		if err := json.Unmarshal([]byte(raw), &topics); err != nil {
			return []string{}
		}
		return model.NormalizeTopics(topics)
	}
	return model.NormalizeTopics(strings.Split(raw, ","))
}
