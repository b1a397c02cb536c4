// Package mqttopic implements MQTT topic filter matching and the
// publish/subscribe topic grammar validators. It has no dependency on
// connection state, so it is usable from the engine, the host client,
// and the embedded client alike.
package mqttopic

import (
	"strings"
	"unicode/utf8"
)

// MalformedError reports a topic or topic filter that violates the
// MQTT grammar.
type MalformedError struct {
	Reason string
}

func (e *MalformedError) Error() string {
	return "mqttopic: " + e.Reason
}

func malformed(reason string) error {
	return &MalformedError{Reason: reason}
}

// MQTT specification limits, used as defaults when a caller passes 0.
const (
	DefaultMaxTopicLength = 65535
	DefaultMaxPayloadSize = 268435455
)

// Match reports whether topic matches filter under the MQTT wildcard
// grammar: '+' matches exactly one level, '#' matches any number of
// trailing levels and must be the final filter level. Per MQTT-4.7.2-1,
// a filter beginning with a wildcard never matches a topic beginning
// with '$'.
func Match(filter, topic string) bool {
	if len(topic) > 0 && topic[0] == '$' {
		if len(filter) > 0 && (filter[0] == '+' || filter[0] == '#') {
			return false
		}
	}

	fIdx, tIdx := 0, 0
	fLen, tLen := len(filter), len(topic)

	for fIdx <= fLen {
		var fLevel string
		var fNext int
		if idx := strings.IndexByte(filter[fIdx:], '/'); idx >= 0 {
			fNext = fIdx + idx
			fLevel = filter[fIdx:fNext]
		} else {
			fNext = fLen
			fLevel = filter[fIdx:]
		}

		if fLevel == "#" {
			return true
		}
		if tIdx > tLen {
			return false
		}

		var tLevel string
		var tNext int
		if idx := strings.IndexByte(topic[tIdx:], '/'); idx >= 0 {
			tNext = tIdx + idx
			tLevel = topic[tIdx:tNext]
		} else {
			tNext = tLen
			tLevel = topic[tIdx:]
		}

		if fLevel != "+" && fLevel != tLevel {
			return false
		}

		if fNext == fLen {
			fIdx = fLen + 1
		} else {
			fIdx = fNext + 1
		}
		if tNext == tLen {
			tIdx = tLen + 1
		} else {
			tIdx = tNext + 1
		}
	}
	return tIdx > tLen
}

func limit(configured, fallback int) int {
	if configured > 0 {
		return configured
	}
	return fallback
}

// ValidatePublishTopic validates a topic name used in PUBLISH: non-empty,
// within maxLength (0 uses DefaultMaxTopicLength), valid UTF-8, and free
// of wildcards and embedded nulls.
func ValidatePublishTopic(topic string, maxLength int) error {
	if topic == "" {
		return malformed("topic cannot be empty")
	}
	if max := limit(maxLength, DefaultMaxTopicLength); len(topic) > max {
		return malformed("topic exceeds maximum length")
	}
	if strings.ContainsAny(topic, "+#") {
		return malformed("topic must not contain wildcard characters")
	}
	if strings.IndexByte(topic, 0) >= 0 {
		return malformed("topic must not contain a null byte")
	}
	if !utf8.ValidString(topic) {
		return malformed("topic is not valid UTF-8")
	}
	return nil
}

// ValidateSubscribeTopic validates a topic filter used in SUBSCRIBE:
// wildcard placement rules (each '+' or '#' must occupy an entire
// level, '#' only as the final level) in addition to the length/UTF-8/
// null checks ValidatePublishTopic performs.
func ValidateSubscribeTopic(filter string, maxLength int) error {
	if filter == "" {
		return malformed("topic filter cannot be empty")
	}
	if max := limit(maxLength, DefaultMaxTopicLength); len(filter) > max {
		return malformed("topic filter exceeds maximum length")
	}
	if strings.IndexByte(filter, 0) >= 0 {
		return malformed("topic filter must not contain a null byte")
	}
	if !utf8.ValidString(filter) {
		return malformed("topic filter is not valid UTF-8")
	}

	levels := strings.Split(filter, "/")
	for i, level := range levels {
		if strings.Contains(level, "+") && level != "+" {
			return malformed("'+' must occupy an entire topic level")
		}
		if strings.Contains(level, "#") {
			if level != "#" {
				return malformed("'#' must occupy an entire topic level")
			}
			if i != len(levels)-1 {
				return malformed("'#' must be the last topic level")
			}
		}
	}
	return nil
}

// ValidatePayload checks payload size against maxSize (0 uses
// DefaultMaxPayloadSize).
func ValidatePayload(payload []byte, maxSize int) error {
	if max := limit(maxSize, DefaultMaxPayloadSize); len(payload) > max {
		return malformed("payload exceeds maximum size")
	}
	return nil
}
