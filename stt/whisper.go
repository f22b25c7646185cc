package stt

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

const defaultWhisperURL = "https://api.openai.com/v1/audio/transcriptions"

// Whisper transcribes audio through an OpenAI-compatible
// transcription endpoint.
type Whisper struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
}

// WhisperConfig holds configuration for the Whisper provider.
type WhisperConfig struct {
	APIKey  string
	BaseURL string // optional, defaults to the OpenAI endpoint
	Model   string // optional, defaults to "whisper-1"
}

// NewWhisper creates a Whisper provider.
func NewWhisper(cfg WhisperConfig) *Whisper {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultWhisperURL
	}
	model := cfg.Model
	if model == "" {
		model = "whisper-1"
	}
	return &Whisper{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		model:   model,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

func (w *Whisper) Name() string { return "whisper" }
func (w *Whisper) Ready() bool  { return w.apiKey != "" }
func (w *Whisper) Close() error { return nil }

// Transcribe uploads one utterance as WAV and returns the
// transcription with segment timings.
func (w *Whisper) Transcribe(ctx context.Context, audio []float32, language string) (*Result, error) {
	if !w.Ready() {
		return nil, fmt.Errorf("whisper: API key required")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if err := encodeWAV(part, audio, SampleRate); err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	if err := mw.WriteField("model", w.model); err != nil {
		return nil, fmt.Errorf("write model field: %w", err)
	}
	// The API rejects "auto"; omitting the field means auto-detect.
	if language != "" && language != "auto" {
		if err := mw.WriteField("language", language); err != nil {
			return nil, fmt.Errorf("write language field: %w", err)
		}
	}
	if err := mw.WriteField("response_format", "verbose_json"); err != nil {
		return nil, fmt.Errorf("write response_format field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+w.apiKey)

	resp, err := w.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var apiResp struct {
		Text     string `json:"text"`
		Language string `json:"language"`
		Segments []struct {
			Text  string  `json:"text"`
			Start float64 `json:"start"`
			End   float64 `json:"end"`
		} `json:"segments"`
	}
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	result := &Result{
		Text:     apiResp.Text,
		Language: apiResp.Language,
		Segments: make([]Segment, len(apiResp.Segments)),
	}
	for i, seg := range apiResp.Segments {
		result.Segments[i] = Segment{
			Text:  seg.Text,
			Start: time.Duration(seg.Start * float64(time.Second)),
			End:   time.Duration(seg.End * float64(time.Second)),
		}
	}
	return result, nil
}

// encodeWAV writes mono 16-bit PCM WAV from float32 samples in [-1, 1].
func encodeWAV(w io.Writer, samples []float32, sampleRate int) error {
	dataSize := len(samples) * 2

	var hdr bytes.Buffer
	hdr.WriteString("RIFF")
	binary.Write(&hdr, binary.LittleEndian, uint32(36+dataSize))
	hdr.WriteString("WAVE")
	hdr.WriteString("fmt ")
	binary.Write(&hdr, binary.LittleEndian, uint32(16))
	binary.Write(&hdr, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&hdr, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&hdr, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&hdr, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(&hdr, binary.LittleEndian, uint16(2))
	binary.Write(&hdr, binary.LittleEndian, uint16(16))
	hdr.WriteString("data")
	binary.Write(&hdr, binary.LittleEndian, uint32(dataSize))
	if _, err := w.Write(hdr.Bytes()); err != nil {
		return err
	}

	pcm := make([]byte, dataSize)
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(s*32767)))
	}
	_, err := w.Write(pcm)
	return err
}
