package genai

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	AssetBase  string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client is a lightweight facade over the Gemini generation endpoints. When
// no API key is configured it produces deterministic synthetic asset URLs so
// the full render pipeline stays exercised in local and CI environments.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	assetBase  string
	httpClient *http.Client
	logger     zerolog.Logger
}

// APIError is a non-2xx answer from the generation endpoint. It exposes the
// status code for retry classification.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gemini status %d", e.Status)
	}
	return fmt.Sprintf("gemini status %d: %s", e.Status, e.Message)
}

func (e *APIError) HTTPStatus() int { return e.Status }

// ImageRequest represents the information required to generate one image.
type ImageRequest struct {
	Prompt        string
	AspectRatio   string
	Locale        string
	ReferenceURLs []string
	RequestID     string
}

// VideoRequest represents the information required to generate a video clip.
type VideoRequest struct {
	Prompt      string
	DurationSec float64
	StillURLs   []string
	Locale      string
	RequestID   string
}

// TextRequest asks the model for plain or JSON text, used by storyboard
// generation.
type TextRequest struct {
	Prompt       string
	ResponseJSON bool
	RequestID    string
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text     string          `json:"text,omitempty"`
	FileData *geminiFileData `json:"fileData,omitempty"`
}

type geminiFileData struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri,omitempty"`
}

type geminiGenerationConfig struct {
	CandidateCount   int    `json:"candidateCount,omitempty"`
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type geminiGenerateContentRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiGenerateContentResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// NewClient constructs a Gemini client with sane defaults. Callers may
// provide a nil HTTP client; a reusable one with a long timeout is created
// since generation calls run for minutes.
func NewClient(opts Options) (*Client, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	model := opts.Model
	if model == "" {
		model = "gemini-1.5-flash"
	}
	assetBase := strings.TrimRight(opts.AssetBase, "/")
	if assetBase == "" {
		assetBase = "https://cdn.storyreel.dev"
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		assetBase:  assetBase,
		httpClient: client,
		logger:     opts.Logger,
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// GenerateImage produces one image for the request and returns its asset URL.
func (c *Client) GenerateImage(ctx context.Context, req ImageRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.apiKey == "" {
		return c.syntheticURL("image", "png", req.RequestID, req.Prompt), nil
	}

	parts := []geminiPart{{Text: imagePrompt(req)}}
	for _, ref := range req.ReferenceURLs {
		parts = append(parts, geminiPart{FileData: &geminiFileData{MimeType: "image/png", FileURI: ref}})
	}
	payload := geminiGenerateContentRequest{
		Contents:         []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: &geminiGenerationConfig{CandidateCount: 1},
	}
	var response geminiGenerateContentResponse
	if err := c.invoke(ctx, fmt.Sprintf("/models/%s:generateContent", url.PathEscape(c.model)), payload, &response); err != nil {
		return "", err
	}
	assetURL := firstFileURI(response)
	if assetURL == "" {
		return "", &APIError{Status: http.StatusBadGateway, Message: "no image content returned"}
	}
	c.logger.Debug().Str("request_id", req.RequestID).Str("model", c.model).Msg("genai: image generated")
	return assetURL, nil
}

// GenerateVideo produces one clip and returns its asset URL.
func (c *Client) GenerateVideo(ctx context.Context, req VideoRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.apiKey == "" {
		return c.syntheticURL("video", "mp4", req.RequestID, req.Prompt), nil
	}

	parts := []geminiPart{{Text: videoPrompt(req)}}
	for _, still := range req.StillURLs {
		parts = append(parts, geminiPart{FileData: &geminiFileData{MimeType: "image/png", FileURI: still}})
	}
	payload := geminiGenerateContentRequest{
		Contents:         []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: &geminiGenerationConfig{CandidateCount: 1},
	}
	var response geminiGenerateContentResponse
	if err := c.invoke(ctx, fmt.Sprintf("/models/%s:generateContent", url.PathEscape(c.model)), payload, &response); err != nil {
		return "", err
	}
	assetURL := firstFileURI(response)
	if assetURL == "" {
		return "", &APIError{Status: http.StatusBadGateway, Message: "no video content returned"}
	}
	c.logger.Debug().Str("request_id", req.RequestID).Str("model", c.model).Msg("genai: video generated")
	return assetURL, nil
}

// GenerateText runs a plain text completion, optionally constrained to JSON.
func (c *Client) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.apiKey == "" {
		return "", &APIError{Status: http.StatusUnauthorized, Message: "api key not configured"}
	}

	cfg := &geminiGenerationConfig{CandidateCount: 1}
	if req.ResponseJSON {
		cfg.ResponseMimeType = "application/json"
	}
	payload := geminiGenerateContentRequest{
		Contents:         []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}}},
		GenerationConfig: cfg,
	}
	var response geminiGenerateContentResponse
	if err := c.invoke(ctx, fmt.Sprintf("/models/%s:generateContent", url.PathEscape(c.model)), payload, &response); err != nil {
		return "", err
	}
	for _, candidate := range response.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				return part.Text, nil
			}
		}
	}
	return "", &APIError{Status: http.StatusBadGateway, Message: "no text content returned"}
}

func (c *Client) invoke(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	q := req.URL.Query()
	q.Set("key", c.apiKey)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr geminiErrorResponse
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
			return &APIError{Status: resp.StatusCode, Message: apiErr.Error.Message}
		}
		return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gemini response: %w", err)
	}
	return nil
}

func firstFileURI(resp geminiGenerateContentResponse) string {
	for _, candidate := range resp.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.FileData != nil && part.FileData.FileURI != "" {
				return part.FileData.FileURI
			}
		}
	}
	return ""
}

// syntheticURL derives a stable placeholder URL so repeated requests for the
// same prompt resolve identically.
func (c *Client) syntheticURL(kind, ext, requestID, prompt string) string {
	sum := sha256.Sum256([]byte(requestID + "\x00" + prompt + "\x00" + c.model))
	seed := hex.EncodeToString(sum[:8])
	u := fmt.Sprintf("%s/synthetic/%s/%s-%s.%s", c.assetBase, kind, c.model, seed, ext)
	c.logger.Debug().Str("request_id", requestID).Str("url", u).Msg("genai: synthetic asset")
	return u
}

func imagePrompt(req ImageRequest) string {
	var b strings.Builder
	b.WriteString(req.Prompt)
	if req.AspectRatio != "" {
		fmt.Fprintf(&b, "\nAspect ratio: %s.", req.AspectRatio)
	}
	if req.Locale != "" && !strings.HasPrefix(strings.ToLower(req.Locale), "en") {
		fmt.Fprintf(&b, "\nAny visible text must be in locale %q.", req.Locale)
	}
	if len(req.ReferenceURLs) > 0 {
		b.WriteString("\nMatch the appearance of the attached reference images.")
	}
	return b.String()
}

func videoPrompt(req VideoRequest) string {
	var b strings.Builder
	b.WriteString(req.Prompt)
	if req.DurationSec > 0 {
		fmt.Fprintf(&b, "\nTarget clip length: %.1f seconds.", req.DurationSec)
	}
	if len(req.StillURLs) > 0 {
		b.WriteString("\nAnimate from the attached still frame.")
	}
	return b.String()
}
