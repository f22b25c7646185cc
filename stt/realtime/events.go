// Package realtime streams microphone audio to the OpenAI Realtime
// transcription API over WebRTC and emits live transcript updates.
package realtime

import "encoding/json"

// Transcription event types delivered on the data channel.
const (
	eventTranscriptionDelta     = "conversation.item.input_audio_transcription.delta"
	eventTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	eventError                  = "error"
)

// ServerEvent is one message from the API. Fields beyond the common
// envelope vary by type and are kept raw.
type ServerEvent struct {
	EventID string         `json:"event_id,omitempty"`
	Type    string         `json:"type"`
	Error   *APIError      `json:"error,omitempty"`
	Extra   map[string]any `json:"-"`
}

// APIError is an error payload from the Realtime API.
type APIError struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}

// UnmarshalJSON captures the envelope plus all remaining fields.
func (e *ServerEvent) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	type alias ServerEvent
	if err := json.Unmarshal(data, (*alias)(e)); err != nil {
		return err
	}

	e.Extra = make(map[string]any)
	for k, v := range raw {
		switch k {
		case "event_id", "type", "error":
		default:
			e.Extra[k] = v
		}
	}
	return nil
}

// Delta returns the incremental transcript text of a delta event.
func (e *ServerEvent) Delta() string {
	s, _ := e.Extra["delta"].(string)
	return s
}

// Transcript returns the full text of a completed event.
func (e *ServerEvent) Transcript() string {
	s, _ := e.Extra["transcript"].(string)
	return s
}

// eventInputAudioBufferCommit builds an input_audio_buffer.commit
// event, forcing transcription of whatever audio is pending.
func eventInputAudioBufferCommit() map[string]any {
	return map[string]any{
		"type": "input_audio_buffer.commit",
	}
}
