package gan

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"stylegan-api/internal/infra"
	"stylegan-api/internal/stylegan"
)

// ErrMissingBaseURL indicates that the remote client was configured without
// an inference endpoint.
var ErrMissingBaseURL = errors.New("gan: remote generator url is required")

// RemoteOptions configures the HTTP inference sidecar client.
type RemoteOptions struct {
	BaseURL        string
	APIKey         string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Remote talks to an inference sidecar that hosts the real networks and
// exposes load, map and synthesize over JSON.
type Remote struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *infra.Logger
}

type loadRequest struct {
	Version  string `json:"version,omitempty"`
	Filename string `json:"filename"`
}

type loadResponse struct {
	Resolution int `json:"resolution"`
	Layers     int `json:"layers"`
	ZDim       int `json:"z_dim"`
	WDim       int `json:"w_dim"`
}

type mapRequest struct {
	Z             []float64 `json:"z"`
	TruncationPsi float64   `json:"truncation_psi"`
}

type codePayload struct {
	Layers   int       `json:"layers"`
	Channels int       `json:"channels"`
	Data     []float32 `json:"data"`
}

type synthesizeResponse struct {
	Image string `json:"image"`
}

type remoteError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewRemote constructs a client with defaults applied.
func NewRemote(opts RemoteOptions) (*Remote, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, ErrMissingBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("gan: invalid remote url: %w", err)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	return &Remote{baseURL: baseURL, apiKey: strings.TrimSpace(opts.APIKey), httpClient: httpClient, logger: logger}, nil
}

// Backend returns a catalog Backend that loads models on the sidecar.
func (r *Remote) Backend() Backend {
	return func(ctx context.Context, e Entry) (stylegan.Generator, error) {
		var info loadResponse
		stem := e.Descriptor.Stem()
		if err := r.call(ctx, stem, "load", loadRequest{Version: e.Descriptor.Version, Filename: e.Descriptor.Filename()}, &info); err != nil {
			return nil, err
		}
		if info.Layers <= 0 || info.WDim <= 0 || info.ZDim <= 0 || info.Resolution <= 0 {
			return nil, fmt.Errorf("gan: sidecar reported invalid shape for %s", stem)
		}
		r.logger.Info().
			Str("model", e.Descriptor.String()).
			Int("layers", info.Layers).
			Int("w_dim", info.WDim).
			Msg("gan: remote model loaded")
		return &remoteGenerator{
			client: r,
			stem:   stem,
			info:   stylegan.ModelInfo{Resolution: info.Resolution, Layers: info.Layers, ZDim: info.ZDim, WDim: info.WDim},
		}, nil
	}
}

func (r *Remote) call(ctx context.Context, stem, op string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("gan: encode %s request: %w", op, err)
	}
	endpoint := fmt.Sprintf("%s/v1/models/%s/%s", r.baseURL, url.PathEscape(stem), op)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("gan: build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gan: %s request: %w", op, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("gan: read %s response: %w", op, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", stylegan.ErrModelNotFound, stem)
	}
	if resp.StatusCode >= 300 {
		var detail remoteError
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Error.Message != "" {
			return fmt.Errorf("gan: %s: %s (%s)", op, detail.Error.Message, detail.Error.Code)
		}
		return fmt.Errorf("gan: %s: status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("gan: decode %s response: %w", op, err)
	}
	return nil
}

type remoteGenerator struct {
	client *Remote
	stem   string
	info   stylegan.ModelInfo
}

func (g *remoteGenerator) Info() stylegan.ModelInfo { return g.info }

func (g *remoteGenerator) Map(ctx context.Context, z []float64, truncationPsi float64) (stylegan.StyleCode, error) {
	var out codePayload
	if err := g.client.call(ctx, g.stem, "map", mapRequest{Z: z, TruncationPsi: truncationPsi}, &out); err != nil {
		return stylegan.StyleCode{}, err
	}
	code := stylegan.StyleCode{Layers: out.Layers, Channels: out.Channels, Data: out.Data}
	if err := code.Validate(); err != nil {
		return stylegan.StyleCode{}, err
	}
	return code, nil
}

func (g *remoteGenerator) Synthesize(ctx context.Context, code stylegan.StyleCode) (stylegan.ImageBuffer, error) {
	var out synthesizeResponse
	in := codePayload{Layers: code.Layers, Channels: code.Channels, Data: code.Data}
	if err := g.client.call(ctx, g.stem, "synthesize", in, &out); err != nil {
		return stylegan.ImageBuffer{}, err
	}
	data, err := base64.StdEncoding.DecodeString(out.Image)
	if err != nil {
		return stylegan.ImageBuffer{}, fmt.Errorf("gan: image not base64 encoded: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return stylegan.ImageBuffer{}, fmt.Errorf("gan: decode synthesized image: %w", err)
	}
	return stylegan.ImageBufferFrom(img), nil
}
