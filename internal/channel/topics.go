package channel

import (
	"strings"

	"codeberg.org/mutker/mupimqtt/internal/config"
)

const commandSuffix = "set"

// Topics computes every topic of one device.
type Topics struct {
	prefix          string
	clientID        string
	discoveryPrefix string
}

func NewTopics(cfg *config.Config) Topics {
	return Topics{
		prefix:          cfg.MQTT.Topic,
		clientID:        cfg.MQTT.ClientID,
		discoveryPrefix: cfg.MQTT.DiscoveryPrefix,
	}
}

// Base is {topicPrefix}/{clientId}.
func (t Topics) Base() string {
	return JoinTopic(t.prefix, t.clientID)
}

// Availability is the topic carrying online/offline and the last will.
func (t Topics) Availability() string {
	return t.State(State)
}

func (t Topics) State(name string) string {
	return JoinTopic(t.Base(), name)
}

func (t Topics) Command(name string) string {
	return JoinTopic(t.Base(), name, commandSuffix)
}

func (t Topics) Discovery(c Channel) string {
	return JoinTopic(t.discoveryPrefix, string(c.Component), t.clientID+"_"+c.Name, "config")
}

// CommandChannel returns the channel name addressed by a command topic.
func (t Topics) CommandChannel(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.Base()+"/")
	if !ok {
		return "", false
	}

	name, ok := strings.CutSuffix(rest, "/"+commandSuffix)
	if !ok || name == "" || strings.Contains(name, "/") {
		return "", false
	}

	return name, true
}

// JoinTopic joins topic segments with single slashes, dropping empty segments
// and stray slashes at segment edges.
func JoinTopic(parts ...string) string {
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			segments = append(segments, p)
		}
	}

	return strings.Join(segments, "/")
}
