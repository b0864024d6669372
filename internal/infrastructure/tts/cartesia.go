package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"DigestScheduler/internal/config"
	"DigestScheduler/internal/ports"
)

const maxAudioBytes = 64 << 20

// Client talks to the Cartesia bytes endpoint for speech synthesis.
type Client struct {
	endpoint     string
	apiKey       string
	model        string
	version      string
	defaultVoice string
	http         *http.Client
}

var _ ports.SpeechSynthesizer = (*Client)(nil)

// NewClient creates a reusable HTTP client.
func NewClient(cfg config.TTSConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		endpoint:     cfg.Endpoint,
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		version:      cfg.Version,
		defaultVoice: cfg.DefaultVoice,
		http:         &http.Client{Timeout: timeout},
	}
}

type voiceSpec struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type outputFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

type synthesisRequest struct {
	ModelID      string       `json:"model_id"`
	Transcript   string       `json:"transcript"`
	Voice        voiceSpec    `json:"voice"`
	OutputFormat outputFormat `json:"output_format"`
	Language     string       `json:"language"`
}

// Synthesize returns WAV audio for text spoken with voiceID in language.
func (c *Client) Synthesize(ctx context.Context, text, voiceID, language string) ([]byte, error) {
	if c.apiKey == "" || c.endpoint == "" {
		return nil, errors.New("tts client misconfigured")
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("nothing to synthesize")
	}
	if voiceID == "" {
		voiceID = c.defaultVoice
	}
	if language == "" {
		language = "en"
	}

	body, err := json.Marshal(synthesisRequest{
		ModelID:      c.model,
		Transcript:   text,
		Voice:        voiceSpec{Mode: "id", ID: voiceID},
		OutputFormat: outputFormat{Container: "wav", Encoding: "pcm_f32le", SampleRate: 44100},
		Language:     language,
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)
	if c.version != "" {
		req.Header.Set("Cartesia-Version", c.version)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Newf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, errors.Wrap(err, "read audio")
	}
	return audio, nil
}
