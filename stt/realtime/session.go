package realtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/realtime"
)

// sdpEndpoint is where the WebRTC SDP offer is exchanged.
const sdpEndpoint = "https://api.openai.com/v1/realtime/calls"

// SessionBroker mints ephemeral transcription sessions and performs
// the SDP exchange the SDK does not cover.
type SessionBroker struct {
	client     *openai.Client
	httpClient *http.Client
}

// NewSessionBroker creates a broker backed by the official OpenAI SDK.
func NewSessionBroker(apiKey string) *SessionBroker {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &SessionBroker{
		client:     &client,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// ClientSecret is the ephemeral key authenticating one WebRTC call.
type ClientSecret struct {
	Value     string
	ExpiresAt int64
}

// CreateSession creates a transcription-only session: audio in, text
// out, server-side VAD for turn detection. language is an ISO-639-1
// code, empty for auto-detect.
func (b *SessionBroker) CreateSession(ctx context.Context, language string) (*ClientSecret, error) {
	input := realtime.RealtimeTranscriptionSessionAudioInputParam{
		TurnDetection: realtime.RealtimeTranscriptionSessionAudioInputTurnDetectionUnionParam{
			OfServerVad: &realtime.RealtimeTranscriptionSessionAudioInputTurnDetectionServerVadParam{
				Type:              "server_vad",
				Threshold:         openai.Float(0.5),
				PrefixPaddingMs:   openai.Int(300),
				SilenceDurationMs: openai.Int(500),
			},
		},
		Transcription: realtime.AudioTranscriptionParam{
			Model: realtime.AudioTranscriptionModelGPT4oTranscribe,
		},
	}
	if language != "" && language != "auto" {
		input.Transcription.Language = openai.String(language)
	}

	resp, err := b.client.Realtime.ClientSecrets.New(ctx, realtime.ClientSecretNewParams{
		Session: realtime.ClientSecretNewParamsSessionUnion{
			OfTranscription: &realtime.RealtimeTranscriptionSessionCreateRequestParam{
				Audio: realtime.RealtimeTranscriptionSessionAudioParam{
					Input: input,
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create client secret: %w", err)
	}
	return &ClientSecret{Value: resp.Value, ExpiresAt: resp.ExpiresAt}, nil
}

// ExchangeSDP posts the local SDP offer and returns the answer.
func (b *SessionBroker) ExchangeSDP(ctx context.Context, offer, ephemeralKey string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sdpEndpoint, bytes.NewBufferString(offer))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+ephemeralKey)
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
	return string(body), nil
}
