package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	opuscodec "github.com/jj11hh/opus"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// TrackSampleRate is the Opus track rate; WebRTC Opus is 48kHz stereo.
const TrackSampleRate = 48000

// Client is one WebRTC call to the Realtime API: an outbound Opus
// track carrying microphone audio and a data channel carrying
// transcription events back.
type Client struct {
	broker   *SessionBroker
	language string

	peerConnection *webrtc.PeerConnection
	dataChannel    *webrtc.DataChannel
	audioTrack     *webrtc.TrackLocalStaticSample
	opusEncoder    *opuscodec.Encoder

	msgChan chan ServerEvent
	errChan chan error

	onOpen func()

	mu     sync.Mutex
	closed bool
}

// NewClient creates a client; Connect establishes the call.
func NewClient(apiKey, language string) *Client {
	return &Client{
		broker:   NewSessionBroker(apiKey),
		language: language,
		msgChan:  make(chan ServerEvent, 100),
		errChan:  make(chan error, 1),
	}
}

// OnOpen sets the data channel open callback. Call before Connect.
func (c *Client) OnOpen(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onOpen = fn
}

// Connect mints an ephemeral session, dials the peer connection, and
// completes the SDP exchange.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	secret, err := c.broker.CreateSession(ctx, c.language)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	slog.Debug("transcription session created", "expires", time.Unix(secret.ExpiresAt, 0))

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return fmt.Errorf("register codecs: %w", err)
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	})
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}
	c.peerConnection = pc

	// The track must exist before the offer is created.
	audioTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeOpus,
			ClockRate: TrackSampleRate,
			Channels:  2,
		},
		"audio",
		"murmur-mic",
	)
	if err != nil {
		return fmt.Errorf("create audio track: %w", err)
	}
	if _, err := pc.AddTrack(audioTrack); err != nil {
		return fmt.Errorf("add audio track: %w", err)
	}
	c.audioTrack = audioTrack

	enc, err := opuscodec.NewEncoder(TrackSampleRate, 2, opuscodec.AppVoIP)
	if err != nil {
		return fmt.Errorf("create opus encoder: %w", err)
	}
	c.opusEncoder = enc

	dc, err := pc.CreateDataChannel("oai-events", nil)
	if err != nil {
		return fmt.Errorf("create data channel: %w", err)
	}
	c.dataChannel = dc

	dc.OnOpen(func() {
		slog.Debug("data channel opened")
		c.mu.Lock()
		fn := c.onOpen
		c.mu.Unlock()
		if fn != nil {
			go fn()
		}
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		var event ServerEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			slog.Error("unmarshal realtime event", "error", err)
			return
		}
		select {
		case c.msgChan <- event:
		case <-time.After(100 * time.Millisecond):
			slog.Warn("event channel full, dropping", "type", event.Type)
		}
	})

	// The API answers with an audio track we never use.
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		go func() {
			for {
				if _, _, err := track.ReadRTP(); err != nil {
					return
				}
			}
		}()
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		slog.Debug("ICE state changed", "state", state.String())
		if state == webrtc.ICEConnectionStateFailed || state == webrtc.ICEConnectionStateClosed {
			select {
			case c.errChan <- fmt.Errorf("ICE connection %s", state.String()):
			default:
			}
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	// Candidates must be in the SDP; wait for gathering.
	<-webrtc.GatheringCompletePromise(pc)

	answerSDP, err := c.broker.ExchangeSDP(ctx, pc.LocalDescription().SDP, secret.Value)
	if err != nil {
		return fmt.Errorf("exchange SDP: %w", err)
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answerSDP,
	}); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}

	slog.Info("realtime connection established")
	return nil
}

// Send sends one control event on the data channel.
func (c *Client) Send(event any) error {
	c.mu.Lock()
	dc := c.dataChannel
	c.mu.Unlock()

	if dc == nil {
		return fmt.Errorf("data channel not initialized")
	}
	if state := dc.ReadyState(); state != webrtc.DataChannelStateOpen {
		return fmt.Errorf("data channel not ready: %s", state.String())
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return dc.Send(data)
}

// SendAudio encodes mono 48kHz float32 samples to Opus and writes
// them to the track.
func (c *Client) SendAudio(samples []float32) error {
	c.mu.Lock()
	track := c.audioTrack
	encoder := c.opusEncoder
	c.mu.Unlock()

	if track == nil || encoder == nil {
		return fmt.Errorf("audio track not ready")
	}

	stereo := make([]float32, len(samples)*2)
	for i, s := range samples {
		stereo[i*2] = s
		stereo[i*2+1] = s
	}

	opusData := make([]byte, 1275)
	n, err := encoder.EncodeFloat32(stereo, opusData)
	if err != nil {
		return fmt.Errorf("opus encode: %w", err)
	}

	return track.WriteSample(media.Sample{
		Data:     opusData[:n],
		Duration: time.Duration(len(samples)) * time.Second / TrackSampleRate,
	})
}

// Messages returns the channel of transcription events.
func (c *Client) Messages() <-chan ServerEvent { return c.msgChan }

// Errors returns the channel of transport failures.
func (c *Client) Errors() <-chan error { return c.errChan }

// Close tears down the call.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.dataChannel != nil {
		_ = c.dataChannel.Close()
	}
	if c.peerConnection != nil {
		return c.peerConnection.Close()
	}
	return nil
}
