package topic

import (
	"fmt"
	"strings"
)

// Topic segments shared by every process that joins the response bus.
// Changing these values breaks compatibility with running replicas.
const (
	// SuffixResponse carries the response/status/error events of one command.
	// Structure: {root}/response/{commandID}
	SuffixResponse = "response"
)

// TopicBuilder encapsulates the logic for constructing MQTT topic strings.
type TopicBuilder struct {
	// root is the base namespace for all topics (e.g., "sovd/v1").
	root string
}

// NewTopicBuilder creates a new instance of TopicBuilder with the specified root namespace.
func NewTopicBuilder(root string) *TopicBuilder {
	return &TopicBuilder{root: strings.TrimSuffix(root, "/")}
}

// Response returns the topic carrying the events of a single command.
func (b *TopicBuilder) Response(commandID string) string {
	return b.build(SuffixResponse, commandID)
}

// ResponseWildcard matches the event topics of every command.
// Result: {root}/response/+
func (b *TopicBuilder) ResponseWildcard() string {
	return b.build(SuffixResponse, Wildcard)
}

// CommandID extracts the command id from a topic produced by Response.
func (b *TopicBuilder) CommandID(topic string) (string, bool) {
	prefix := b.root + "/" + SuffixResponse + "/"
	if !strings.HasPrefix(topic, prefix) {
		return "", false
	}
	id := strings.TrimPrefix(topic, prefix)
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// build is a private helper to construct the final topic string.
// Pattern: {root}/{suffix}/{identifier}
func (b *TopicBuilder) build(suffix, id string) string {
	return fmt.Sprintf("%s/%s/%s", b.root, suffix, id)
}
