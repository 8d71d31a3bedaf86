package rabbitmq

import "strings"

const (
	TopicReadings   = "hydro/readings"
	TopicAlerts     = "hydro/alerts"
	TopicAggregated = "hydro/aggregated"
)

// Topic joins a base topic with its sub-levels.
func Topic(base string, levels ...string) string {
	return strings.Join(append([]string{base}, levels...), "/")
}

// qos 1 per alert e aggregati, il resto at-most-once
func qosFor(topic string) byte {
	t := strings.TrimSpace(topic)
	if strings.HasPrefix(t, TopicAlerts) || strings.HasPrefix(t, TopicAggregated) {
		return 1
	}
	return 0
}
