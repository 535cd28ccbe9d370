package proto

import "fmt"

// DecodeError is returned for malformed bus payloads
type DecodeError struct {
	Topic   string
	Payload string
	Reason  string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %s: %q", e.Topic, e.Reason, e.Payload)
}

func decodeError(topic, payload, format string, args ...interface{}) *DecodeError {
	return &DecodeError{
		Topic:   topic,
		Payload: payload,
		Reason:  fmt.Sprintf(format, args...),
	}
}
