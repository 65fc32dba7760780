package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	data, err := Encode(&InputAudioBufferAppend{Audio: "AAEC"})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, TypeInputAudioBufferAppend, raw["type"])
	assert.Equal(t, "AAEC", raw["audio"])
	assert.Contains(t, raw["event_id"], "evt_")
}

func TestEncode_KeepsEventID(t *testing.T) {
	msg := &ResponseCancel{Envelope: Envelope{EventID: "evt_fixed"}}
	data, err := Encode(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event_id":"evt_fixed","type":"response.cancel"}`, string(data))
}

func TestEncode_SessionUpdate(t *testing.T) {
	data, err := Encode(&SessionUpdate{Session: SessionConfig{
		Model:      "gpt-4o-realtime-preview",
		Modalities: []string{"audio", "text"},
		Voice:      "alloy",
		TurnDetection: &TurnDetection{
			Type:              "server_vad",
			Threshold:         0.5,
			PrefixPaddingMs:   300,
			SilenceDurationMs: 500,
		},
	}})
	require.NoError(t, err)

	var decoded SessionUpdate
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, TypeSessionUpdate, decoded.Type)
	assert.Equal(t, "alloy", decoded.Session.Voice)
	require.NotNil(t, decoded.Session.TurnDetection)
	assert.Equal(t, 500, decoded.Session.TurnDetection.SilenceDurationMs)
}

func TestEncode_FunctionCallOutput(t *testing.T) {
	data, err := Encode(NewFunctionCallOutput("call_1", `{"ok":true}`))
	require.NoError(t, err)

	var decoded ConversationItemCreate
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "function_call_output", decoded.Item.Type)
	assert.Equal(t, "call_1", decoded.Item.CallID)
	assert.Equal(t, `{"ok":true}`, decoded.Item.Output)
}

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, msg ServerMessage)
	}{
		{
			name:  "会话创建",
			input: `{"type":"session.created","event_id":"e1","session":{"id":"sess_1","model":"m","voice":"alloy"}}`,
			check: func(t *testing.T, msg ServerMessage) {
				created, ok := msg.(*SessionCreated)
				require.True(t, ok)
				assert.Equal(t, "sess_1", created.Session.ID)
			},
		},
		{
			name:  "音频片段解码",
			input: `{"type":"response.audio.delta","response_id":"r1","delta":"AAECAw=="}`,
			check: func(t *testing.T, msg ServerMessage) {
				delta, ok := msg.(*ResponseAudioDelta)
				require.True(t, ok)
				assert.Equal(t, []byte{0, 1, 2, 3}, delta.Audio)
			},
		},
		{
			name:  "函数调用",
			input: `{"type":"response.function_call_arguments.done","call_id":"c1","name":"lookup","arguments":"{}"}`,
			check: func(t *testing.T, msg ServerMessage) {
				call, ok := msg.(*FunctionCallArgumentsDone)
				require.True(t, ok)
				assert.Equal(t, "lookup", call.Name)
			},
		},
		{
			name:  "远端错误",
			input: `{"type":"error","error":{"type":"invalid_request_error","code":"bad","message":"boom"}}`,
			check: func(t *testing.T, msg ServerMessage) {
				e, ok := msg.(*Error)
				require.True(t, ok)
				assert.Equal(t, "bad", e.Error.Code)
			},
		},
		{
			name:  "限流",
			input: `{"type":"rate_limits.updated","rate_limits":[{"name":"requests","limit":100,"remaining":99,"reset_seconds":1.5}]}`,
			check: func(t *testing.T, msg ServerMessage) {
				rl, ok := msg.(*RateLimitsUpdated)
				require.True(t, ok)
				require.Len(t, rl.RateLimits, 1)
				assert.Equal(t, 99, rl.RateLimits[0].Remaining)
			},
		},
		{
			name:  "未知类型原样保留",
			input: `{"type":"response.output_item.added","item":{}}`,
			check: func(t *testing.T, msg ServerMessage) {
				u, ok := msg.(*Unknown)
				require.True(t, ok)
				assert.Equal(t, "response.output_item.added", u.MessageType())
				assert.NotEmpty(t, u.Raw)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Parse([]byte(tt.input))
			require.NoError(t, err)
			tt.check(t, msg)
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	inputs := map[string]string{
		"非JSON":         `not json`,
		"缺少type":        `{"event_id":"e"}`,
		"会话缺少ID":        `{"type":"session.created","session":{}}`,
		"函数调用缺少call_id": `{"type":"response.function_call_arguments.done","name":"x"}`,
		"音频非base64":     `{"type":"response.audio.delta","delta":"!!!"}`,
		"空错误":           `{"type":"error","error":{}}`,
	}

	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(input))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}
