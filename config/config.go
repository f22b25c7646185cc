// Package config handles application configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.aimuz.me/murmur/internal/types"
)

const (
	appName        = "murmur"
	configFileName = "config.json"
)

// Engine names selectable in Speech.Engine.
const (
	EngineRealtime = "realtime"
	EngineWhisper  = "whisper"
)

// Config represents the application configuration.
type Config struct {
	Gesture  GestureConfig  `json:"gesture"`
	Speech   SpeechConfig   `json:"speech"`
	Delivery DeliveryConfig `json:"delivery"`
	Filters  FilterConfig   `json:"filters"`

	Credentials []types.APICredential `json:"credentials,omitempty"`
}

// GestureConfig tunes the activation gesture.
type GestureConfig struct {
	// ActivationKeyCode is the raw code of the activation key.
	ActivationKeyCode int `json:"activation_key_code"`
	// HoldThresholdMS separates a hold from a tap.
	HoldThresholdMS int `json:"hold_threshold_ms"`
	// DoubleTapWindowMS is how long after a tap a second tap counts
	// as a double tap.
	DoubleTapWindowMS int `json:"double_tap_window_ms"`
}

// SpeechConfig selects and configures the speech engine.
type SpeechConfig struct {
	// Engine is "realtime" or "whisper".
	Engine string `json:"engine"`
	// Locale is an ISO-639-1 recognition hint, empty for auto.
	Locale string `json:"locale,omitempty"`
	// CredentialID selects the OpenAI credential used by the engine.
	CredentialID string `json:"credential_id,omitempty"`
	// Model overrides the engine default model.
	Model string `json:"model,omitempty"`
}

// DeliveryConfig tunes how processed text reaches the target app.
type DeliveryConfig struct {
	// AutoPaste injects text directly; false copies and re-activates.
	AutoPaste bool `json:"auto_paste"`
	// PreviewTimeoutMS discards an unconfirmed preview.
	PreviewTimeoutMS int `json:"preview_timeout_ms"`
	// HintTimeoutMS dismisses the paste-failure hint.
	HintTimeoutMS int `json:"hint_timeout_ms"`
}

// FilterConfig toggles the post-processing filters.
type FilterConfig struct {
	RemoveFillers bool `json:"remove_fillers"`
	FormatText    bool `json:"format_text"`

	Rewrite RewriteConfig `json:"rewrite"`
}

// RewriteConfig configures the AI rewrite filter.
type RewriteConfig struct {
	Enabled      bool    `json:"enabled"`
	CredentialID string  `json:"credential_id,omitempty"`
	Model        string  `json:"model,omitempty"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
	TimeoutMS    int     `json:"timeout_ms,omitempty"`
	MinRatio     float64 `json:"min_ratio,omitempty"`
	MaxRatio     float64 `json:"max_ratio,omitempty"`
}

// Load loads configuration from the config file.
// Returns default config if the file doesn't exist.
func Load() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, fmt.Errorf("get config path: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()
	return &cfg, nil
}

// Save persists the configuration to disk.
func (c *Config) Save() error {
	path, err := configPath()
	if err != nil {
		return fmt.Errorf("get config path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Default returns the standard configuration.
func Default() *Config {
	return &Config{
		Gesture: GestureConfig{
			ActivationKeyCode: 61, // right option
			HoldThresholdMS:   300,
			DoubleTapWindowMS: 300,
		},
		Speech: SpeechConfig{
			Engine: EngineRealtime,
		},
		Delivery: DeliveryConfig{
			AutoPaste:        true,
			PreviewTimeoutMS: 8000,
			HintTimeoutMS:    4000,
		},
		Filters: FilterConfig{
			RemoveFillers: true,
			FormatText:    true,
			Rewrite: RewriteConfig{
				TimeoutMS: 5000,
				MinRatio:  0.3,
				MaxRatio:  3.0,
			},
		},
	}
}

// normalize backfills zero values so a hand-edited config stays sane.
func (c *Config) normalize() {
	def := Default()
	if c.Gesture.ActivationKeyCode <= 0 {
		c.Gesture.ActivationKeyCode = def.Gesture.ActivationKeyCode
	}
	if c.Gesture.HoldThresholdMS <= 0 {
		c.Gesture.HoldThresholdMS = def.Gesture.HoldThresholdMS
	}
	if c.Gesture.DoubleTapWindowMS <= 0 {
		c.Gesture.DoubleTapWindowMS = def.Gesture.DoubleTapWindowMS
	}
	if c.Speech.Engine != EngineRealtime && c.Speech.Engine != EngineWhisper {
		c.Speech.Engine = def.Speech.Engine
	}
	if c.Delivery.PreviewTimeoutMS <= 0 {
		c.Delivery.PreviewTimeoutMS = def.Delivery.PreviewTimeoutMS
	}
	if c.Delivery.HintTimeoutMS <= 0 {
		c.Delivery.HintTimeoutMS = def.Delivery.HintTimeoutMS
	}
	if c.Filters.Rewrite.TimeoutMS <= 0 {
		c.Filters.Rewrite.TimeoutMS = def.Filters.Rewrite.TimeoutMS
	}
	if c.Filters.Rewrite.MinRatio <= 0 {
		c.Filters.Rewrite.MinRatio = def.Filters.Rewrite.MinRatio
	}
	if c.Filters.Rewrite.MaxRatio <= 0 {
		c.Filters.Rewrite.MaxRatio = def.Filters.Rewrite.MaxRatio
	}
}

// HoldThreshold returns the hold threshold as a duration.
func (c *Config) HoldThreshold() time.Duration {
	return time.Duration(c.Gesture.HoldThresholdMS) * time.Millisecond
}

// DoubleTapWindow returns the double-tap window as a duration.
func (c *Config) DoubleTapWindow() time.Duration {
	return time.Duration(c.Gesture.DoubleTapWindowMS) * time.Millisecond
}

// PreviewTimeout returns the preview timeout as a duration.
func (c *Config) PreviewTimeout() time.Duration {
	return time.Duration(c.Delivery.PreviewTimeoutMS) * time.Millisecond
}

// HintTimeout returns the hint timeout as a duration.
func (c *Config) HintTimeout() time.Duration {
	return time.Duration(c.Delivery.HintTimeoutMS) * time.Millisecond
}

// ─────────────────────────────────────────────────────────────────────────────
// API Credential Management
// ─────────────────────────────────────────────────────────────────────────────

// GetCredentials returns all API credentials.
func (c *Config) GetCredentials() []types.APICredential {
	return c.Credentials
}

// GetCredential returns a credential by ID, nil if absent.
func (c *Config) GetCredential(id string) *types.APICredential {
	for i := range c.Credentials {
		if c.Credentials[i].ID == id {
			return &c.Credentials[i]
		}
	}
	return nil
}

// AddCredential adds a new API credential.
func (c *Config) AddCredential(cred types.APICredential) error {
	if cred.Name == "" {
		return fmt.Errorf("credential name required")
	}
	if cred.APIKey == "" {
		return fmt.Errorf("api key required")
	}
	if cred.Type == "openai-compatible" && cred.BaseURL == "" {
		return fmt.Errorf("base url required for openai-compatible")
	}
	if cred.ID == "" {
		cred.ID = uuid.New().String()
	}

	c.Credentials = append(c.Credentials, cred)
	return c.Save()
}

// UpdateCredential updates an existing credential.
func (c *Config) UpdateCredential(id string, cred types.APICredential) error {
	idx := slices.IndexFunc(c.Credentials, func(x types.APICredential) bool {
		return x.ID == id
	})
	if idx == -1 {
		return fmt.Errorf("credential not found: %s", id)
	}

	cred.ID = id
	c.Credentials[idx] = cred
	return c.Save()
}

// RemoveCredential removes a credential by ID. It refuses when the
// credential is referenced by the speech engine or rewrite filter.
func (c *Config) RemoveCredential(id string) error {
	if c.Speech.CredentialID == id {
		return fmt.Errorf("credential in use by speech engine")
	}
	if c.Filters.Rewrite.CredentialID == id {
		return fmt.Errorf("credential in use by rewrite filter")
	}

	idx := slices.IndexFunc(c.Credentials, func(x types.APICredential) bool {
		return x.ID == id
	})
	if idx == -1 {
		return fmt.Errorf("credential not found: %s", id)
	}

	c.Credentials = slices.Delete(c.Credentials, idx, idx+1)
	return c.Save()
}

// SpeechCredential resolves the credential for the speech engine,
// falling back to the first OpenAI credential.
func (c *Config) SpeechCredential() *types.APICredential {
	if c.Speech.CredentialID != "" {
		if cred := c.GetCredential(c.Speech.CredentialID); cred != nil {
			return cred
		}
	}
	for i := range c.Credentials {
		if c.Credentials[i].Type == "openai" || c.Credentials[i].Type == "openai-compatible" {
			return &c.Credentials[i]
		}
	}
	return nil
}

// RewriteCredential resolves the credential for the rewrite filter,
// falling back to the first credential of any type.
func (c *Config) RewriteCredential() *types.APICredential {
	if c.Filters.Rewrite.CredentialID != "" {
		if cred := c.GetCredential(c.Filters.Rewrite.CredentialID); cred != nil {
			return cred
		}
	}
	if len(c.Credentials) > 0 {
		return &c.Credentials[0]
	}
	return nil
}

func configPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get user config dir: %w", err)
	}
	return filepath.Join(dir, appName, configFileName), nil
}
