package mqtt

import "strings"

// TopicPrefix is the root of every encoderd topic.
const TopicPrefix = "encoderd"

// Topics provides builders for encoderd MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.Angle("780X") // "encoderd/angle/780X"
type Topics struct{}

// Status is the retained daemon status topic, also used for the Last Will.
//
// Example: encoderd/status
func (Topics) Status() string {
	return TopicPrefix + "/status"
}

// Angle is the retained angle state topic for one encoder.
//
// Example: encoderd/angle/780X
func (Topics) Angle(name string) string {
	return TopicPrefix + "/angle/" + TopicSegment(name)
}

// TopicSegment makes name safe for use as one topic level by replacing
// separators and wildcards with underscores. The mapping is not injective;
// config validation rejects encoder names containing these characters, so
// configured names always map to themselves.
func TopicSegment(name string) string {
	if name == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '+', '#', 0:
			return '_'
		}
		return r
	}, name)
}
