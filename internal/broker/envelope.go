package broker

import (
	"encoding/json"
	"time"
)

// Envelope wraps every message sent through the broker: metadata plus an
// opaque content payload, and — once a handler has failed on it — failure
// info describing why. Grounded on original_source's RbrokerPayload /
// RbrokerPayloadMetadata / RbrokerPayloadExcInfo (core/shared/components/
// redis/broker.py), translated from pydantic BaseModels to plain structs.
type Envelope struct {
	Metadata Metadata        `json:"metadata"`
	Content  json.RawMessage `json:"content"`
	ExcInfo  *FailureInfo    `json:"exc_info,omitempty"`
}

// Metadata carries the envelope's creation time, extendable by callers via
// Extra for correlation data (trace ids, task ids).
type Metadata struct {
	CreatedAt time.Time         `json:"created_at"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// FailureInfo records why a handler rejected a message, attached before the
// message is re-published to its topic's dead-letter stream.
type FailureInfo struct {
	Message  string    `json:"message"`
	Type     string    `json:"type"`
	FailedAt time.Time `json:"failed_at"`
}

// NewEnvelope wraps content with a fresh creation timestamp.
func NewEnvelope(content any) (Envelope, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Metadata: Metadata{CreatedAt: time.Now().UTC()},
		Content:  raw,
	}, nil
}

// DLQTopic is the dead-letter stream name for a given topic, e.g.
// "ready-tasks" -> "ready-tasks-dlq".
func DLQTopic(topic string) string {
	return topic + "-dlq"
}
