package mqtt

import (
	"fmt"
	"strings"
)

// TopicError describes an invalid topic name or filter
type TopicError struct {
	Topic  string
	Reason string
}

func (e *TopicError) Error() string {
	return fmt.Sprintf("invalid topic %q: %s", e.Topic, e.Reason)
}

// ValidateTopicName checks a topic used for publishing: non-empty,
// no wildcards, no NUL characters
func ValidateTopicName(topic string) error {
	if topic == "" {
		return &TopicError{Topic: topic, Reason: "empty"}
	}
	if strings.ContainsAny(topic, "+#") {
		return &TopicError{Topic: topic, Reason: "wildcards are not allowed when publishing"}
	}
	if strings.ContainsRune(topic, 0) {
		return &TopicError{Topic: topic, Reason: "contains NUL"}
	}
	return nil
}

// ValidateTopicFilter checks a subscription filter.
// '+' must occupy a whole level; '#' must be the whole last level.
func ValidateTopicFilter(filter string) error {
	if filter == "" {
		return &TopicError{Topic: filter, Reason: "empty"}
	}
	if strings.ContainsRune(filter, 0) {
		return &TopicError{Topic: filter, Reason: "contains NUL"}
	}

	levels := strings.Split(filter, "/")
	for i, level := range levels {
		if strings.Contains(level, "+") && level != "+" {
			return &TopicError{Topic: filter, Reason: "'+' must occupy an entire level"}
		}
		if strings.Contains(level, "#") && (level != "#" || i != len(levels)-1) {
			return &TopicError{Topic: filter, Reason: "'#' must be the last level"}
		}
	}
	return nil
}

// MatchTopic reports whether topic matches filter.
// Topics starting with '$' are not matched by a leading wildcard.
func MatchTopic(filter, topic string) bool {
	if strings.HasPrefix(topic, "$") && (strings.HasPrefix(filter, "+") || strings.HasPrefix(filter, "#")) {
		return false
	}

	f := strings.Split(filter, "/")
	t := strings.Split(topic, "/")

	for i, level := range f {
		if level == "#" {
			return true
		}
		if i >= len(t) {
			return false
		}
		if level != "+" && level != t[i] {
			return false
		}
	}
	return len(f) == len(t)
}
