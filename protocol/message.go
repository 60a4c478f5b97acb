// Package protocol defines the line-delimited JSON messages exchanged with a
// design-time client, and the conversion of tests and results into their wire form.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Version is the highest protocol version this host speaks.
const Version = 1

// Message types
const (
	TypeProtocolVersion = "ProtocolVersion"

	TypeDiscoveryStart     = "TestDiscovery.Start"
	TypeDiscoveryTestFound = "TestDiscovery.TestFound"
	TypeDiscoveryResponse  = "TestDiscovery.Response"

	TypeExecutionStart       = "TestExecution.Start"
	TypeExecutionTestFound   = "TestExecution.TestFound"
	TypeExecutionTestResult  = "TestExecution.TestResult"
	TypeExecutionResponse    = "TestExecution.Response"

	TypeError = "Error"
)

// Message is the envelope of every line on the wire.
type Message struct {
	MessageType string          `json:"MessageType"`
	Payload     json.RawMessage `json:"Payload,omitempty"`
}

// ProtocolVersionPayload negotiates the protocol version.
type ProtocolVersionPayload struct {
	Version int `json:"Version"`
}

// RunTestsPayload lists the fully qualified names to execute. Empty runs everything.
type RunTestsPayload struct {
	Tests []string `json:"Tests,omitempty"`
}

// ErrorPayload carries a description of a failure.
type ErrorPayload struct {
	Message string `json:"Message"`
}

// NewMessage builds a message with payload marshalled to JSON. A nil payload
// produces a message without one.
func NewMessage(messageType string, payload any) (*Message, error) {
	msg := &Message{MessageType: messageType}
	if payload == nil {
		return msg, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", messageType, err)
	}
	msg.Payload = raw
	return msg, nil
}

// NewErrorMessage wraps err into an Error message.
func NewErrorMessage(err error) *Message {
	text := "unknown error"
	if err != nil {
		text = err.Error()
	}
	// An ErrorPayload always marshals.
	raw, _ := json.Marshal(ErrorPayload{Message: text})
	return &Message{MessageType: TypeError, Payload: raw}
}

// DecodePayload unmarshals the payload into v. A missing payload leaves v untouched.
func (m *Message) DecodePayload(v any) error {
	if len(m.Payload) == 0 || string(m.Payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("invalid %s payload: %w", m.MessageType, err)
	}
	return nil
}
