package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-testhost/types"
)

func TestNewMessage(t *testing.T) {
	msg, err := NewMessage(TypeProtocolVersion, ProtocolVersionPayload{Version: Version})
	require.NoError(t, err)

	line, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"MessageType":"ProtocolVersion","Payload":{"Version":1}}`, string(line))

	msg, err = NewMessage(TypeDiscoveryResponse, nil)
	require.NoError(t, err)
	line, err = json.Marshal(msg)
	require.NoError(t, err)
	assert.Equal(t, `{"MessageType":"TestDiscovery.Response"}`, string(line))
}

func TestDecodePayload(t *testing.T) {
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(`{"MessageType":"TestExecution.Start","Payload":{"Tests":["a.TestB"]}}`), &msg))

	var run RunTestsPayload
	require.NoError(t, msg.DecodePayload(&run))
	assert.Equal(t, []string{"a.TestB"}, run.Tests)

	var empty RunTestsPayload
	require.NoError(t, (&Message{MessageType: TypeExecutionStart}).DecodePayload(&empty))
	assert.Empty(t, empty.Tests)

	bad := &Message{MessageType: TypeProtocolVersion, Payload: json.RawMessage(`{"Version":"one"}`)}
	var pv ProtocolVersionPayload
	assert.Error(t, bad.DecodePayload(&pv))
}

func TestNewErrorMessage(t *testing.T) {
	msg := NewErrorMessage(errors.New("boom"))
	assert.Equal(t, TypeError, msg.MessageType)

	var payload ErrorPayload
	require.NoError(t, msg.DecodePayload(&payload))
	assert.Equal(t, "boom", payload.Message)
}

func TestConvertTest(t *testing.T) {
	test := types.NewTest("store.test", "github.com/acme/store", "TestGet")
	test.Traits["category"] = []string{"fast"}
	test.CodeFilePath = "/src/store/get_test.go"
	test.LineNumber = 12

	wire := ConvertTest(test, false)
	assert.Equal(t, TestID("github.com/acme/store.TestGet"), wire.Id)
	assert.Equal(t, "TestGet", wire.DisplayName)
	assert.Equal(t, "github.com/acme/store.TestGet", wire.FullyQualifiedName)
	assert.Equal(t, 12, wire.LineNumber)
	assert.Equal(t, []string{"fast"}, wire.Properties["category"])

	again := ConvertTest(test, true)
	assert.Equal(t, wire.Id, again.Id, "wire identity must be deterministic")
	assert.Equal(t, "github.com/acme/store.TestGet", again.DisplayName)

	converted := ConvertTests([]*types.Test{test}, false)
	require.Contains(t, converted, test.ID)
	assert.Equal(t, wire.Id, converted[test.ID].Id)
}

func TestConvertResult(t *testing.T) {
	test := types.NewTest("store.test", "github.com/acme/store", "TestGet")
	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	result := &types.TestResult{
		Test:         test,
		Outcome:      types.TestOutcomeFailed,
		ErrorMessage: "expected 1, got 2",
		Duration:     1500 * time.Millisecond,
		StartTime:    start,
		EndTime:      start.Add(1500 * time.Millisecond),
		Messages:     []string{"log line"},
	}

	wire := ConvertResult(result, nil)
	assert.Equal(t, OutcomeFailed, wire.Outcome)
	assert.Equal(t, "00:00:01.5000000", wire.Duration)
	assert.Equal(t, "TestGet", wire.DisplayName)
	assert.Equal(t, []string{"log line"}, wire.Messages)
	assert.Equal(t, "expected 1, got 2", wire.ErrorMessage)
}

func TestFormatTimeSpan(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00:00.0000000"},
		{1234567 * time.Microsecond, "00:00:01.2345670"},
		{90*time.Minute + 5*time.Second, "01:30:05.0000000"},
		{49 * time.Hour, "2.01:00:00.0000000"},
		{-time.Second, "-00:00:01.0000000"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatTimeSpan(tt.in))
		})
	}
}

func TestConvertOutcome(t *testing.T) {
	assert.Equal(t, OutcomePassed, ConvertOutcome(types.TestOutcomePassed))
	assert.Equal(t, OutcomeSkipped, ConvertOutcome(types.TestOutcomeSkipped))
	assert.Equal(t, OutcomeNone, ConvertOutcome(""))
}
