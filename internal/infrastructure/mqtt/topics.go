package mqtt

import (
	"fmt"
	"strings"
)

// Management topic segments understood by the reader firmware.
// A reader subscribes to {reader_id}/whitelist/{action}, {reader_id}/configure/{key}
// and {reader_id}/reset.
const (
	segmentWhitelist = "whitelist"
	segmentConfigure = "configure"
	segmentReset     = "reset"

	// Whitelist actions.
	WhitelistUpdate = "update"
	WhitelistAdd    = "add"
	WhitelistRemove = "remove"
)

// topicSeparator separates topic levels.
const topicSeparator = "/"

// Topics provides builders for the reader MQTT topic scheme.
// Using these helpers keeps topic naming in one place:
//
//	topics := mqtt.Topics{}
//	topic := topics.Whitelist("reader-01", mqtt.WhitelistUpdate)
//	// Returns: "reader-01/whitelist/update"
type Topics struct{}

// =============================================================================
// Presence Topics
// =============================================================================

// PresenceFilter returns the multi-level wildcard filter under a presence prefix.
//
// Example: online/#
func (Topics) PresenceFilter(prefix string) string {
	return prefix + topicSeparator + "#"
}

// Presence returns the announcement topic a reader publishes under a prefix.
//
// Example: online/reader-01
func (Topics) Presence(prefix, readerID string) string {
	return prefix + topicSeparator + readerID
}

// =============================================================================
// Management Topics
// =============================================================================

// Whitelist returns the whitelist management topic for a reader.
//
// Example: reader-01/whitelist/update
func (Topics) Whitelist(readerID, action string) string {
	return fmt.Sprintf("%s/%s/%s", readerID, segmentWhitelist, action)
}

// Configure returns the configuration topic for a single key on a reader.
//
// Example: reader-01/configure/thresh
func (Topics) Configure(readerID, key string) string {
	return fmt.Sprintf("%s/%s/%s", readerID, segmentConfigure, key)
}

// Reset returns the reset topic for a reader.
//
// Example: reader-01/reset
func (Topics) Reset(readerID string) string {
	return readerID + topicSeparator + segmentReset
}

// =============================================================================
// Helpers
// =============================================================================

// HasLevelPrefix reports whether the first level of topic equals level.
// "online/r1" has level prefix "online"; "onlineX/r1" does not.
func HasLevelPrefix(topic, level string) bool {
	if level == "" {
		return false
	}
	return topic == level || strings.HasPrefix(topic, level+topicSeparator)
}

// LastLevel returns the final level of a topic.
func LastLevel(topic string) string {
	if i := strings.LastIndex(topic, topicSeparator); i >= 0 {
		return topic[i+1:]
	}
	return topic
}

// validFilter reports whether filter is a well-formed subscription filter:
// non-empty, + and # only as whole levels, # only as the last level.
func validFilter(filter string) bool {
	if filter == "" {
		return false
	}
	levels := strings.Split(filter, topicSeparator)
	for i, level := range levels {
		switch {
		case level == "#":
			if i != len(levels)-1 {
				return false
			}
		case level == "+":
		case strings.ContainsAny(level, "+#"):
			return false
		}
	}
	return true
}
