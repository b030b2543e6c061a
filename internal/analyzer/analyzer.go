// Package analyzer describes scene keyframes with a remote vision-capable
// language model, degrading through cheaper model tiers when a call fails.
package analyzer

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hipo65opo/SceneAnalyzerPlayer/internal/cancel"
	"github.com/hipo65opo/SceneAnalyzerPlayer/internal/models"
)

var (
	// ErrNotConfigured is returned by calls made before Configure succeeds.
	// Such calls never reach the network.
	ErrNotConfigured = errors.New("analysis client is not configured")

	// ErrAuth marks a credential rejection. Unlike quota or transient
	// failures it aborts the whole analysis stage: a bad key fails every
	// tier the same way, so walking the fallback ladder per item would
	// just burn the batch delay for nothing.
	ErrAuth = errors.New("analysis service rejected credentials")
)

// DefaultBatchDelay is the fixed pause between remote calls. Plain
// rate-limit mitigation, not adaptive backoff.
const DefaultBatchDelay = 500 * time.Millisecond

// ModelTiers names the fallback ladder: a failed call on one tier downgrades
// to the next and never climbs back within a client's lifetime.
type ModelTiers struct {
	Primary  string
	Standard string
	Minimal  string
}

// DefaultTiers returns the stock ladder.
func DefaultTiers() ModelTiers {
	return ModelTiers{
		Primary:  "gpt-4.1",
		Standard: "gpt-4.1-mini",
		Minimal:  "gpt-4.1-nano",
	}
}

func (m ModelTiers) at(i int) string {
	switch i {
	case 0:
		return m.Primary
	case 1:
		return m.Standard
	default:
		return m.Minimal
	}
}

// ProgressFunc receives per-item progress (items done, total items).
type ProgressFunc func(done, total int)

// SceneFunc receives each scene as soon as its analysis settles.
type SceneFunc func(models.Scene)

// describeFunc performs one remote vision call; replaced in tests.
type describeFunc func(ctx context.Context, model, prompt, imageURL string) (string, error)

// embedFunc performs one remote embedding call; replaced in tests.
type embedFunc func(ctx context.Context, text string) ([]float32, error)

// Client is the remote analysis client. The zero state is unconfigured;
// Configure moves it to configured and reconfiguration overwrites.
type Client struct {
	logger     *slog.Logger
	tiers      ModelTiers
	tier       int // index into tiers; only ever advances
	configured bool
	delay      time.Duration

	describe describeFunc
	embed    embedFunc
}

// NewClient returns an unconfigured client.
func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{logger: logger, delay: DefaultBatchDelay}
}

// Configure sets credentials and the model ladder. baseURL may be empty for
// the default endpoint; any OpenAI-compatible endpoint works.
func (c *Client) Configure(apiKey, baseURL string, tiers ModelTiers) error {
	if apiKey == "" {
		return fmt.Errorf("%w: empty API key", ErrNotConfigured)
	}
	if tiers.Primary == "" {
		tiers = DefaultTiers()
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	api := openai.NewClient(opts...)

	c.describe = func(ctx context.Context, model, prompt, imageURL string) (string, error) {
		resp, err := api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model: openai.ChatModel(model),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
					openai.TextContentPart(prompt),
					openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
						URL: imageURL,
					}),
				}),
			},
		})
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("no response choices from model %s", model)
		}
		return resp.Choices[0].Message.Content, nil
	}
	c.embed = func(ctx context.Context, text string) ([]float32, error) {
		resp, err := api.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Model: openai.EmbeddingModelTextEmbedding3Small,
			Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Data) == 0 {
			return nil, fmt.Errorf("no embedding data returned")
		}
		src := resp.Data[0].Embedding
		vec := make([]float32, len(src))
		for i, v := range src {
			vec[i] = float32(v)
		}
		return vec, nil
	}

	c.tiers = tiers
	c.tier = 0
	c.configured = true
	c.logger.Info("analysis client configured", "model", tiers.Primary)
	return nil
}

// Configured reports whether Configure has succeeded.
func (c *Client) Configured() bool { return c.configured }

// CurrentModel returns the model tier in use after any downgrades.
func (c *Client) CurrentModel() string { return c.tiers.at(c.tier) }

// Analyze describes a single keyframe. The image is validated locally before
// any network call. On remote failure the client downgrades through the
// model tiers; a failure on the minimal tier is terminal for the item and is
// reported in the scene's description with confidence 0, not as an error.
// Only ErrNotConfigured and ErrAuth are returned as errors.
func (c *Client) Analyze(ctx context.Context, imagePath, prompt string) (string, float64, error) {
	if !c.configured {
		return "", 0, ErrNotConfigured
	}

	imageURL, err := encodeImage(imagePath)
	if err != nil {
		c.logger.Warn("keyframe unreadable", "path", imagePath, "error", err)
		return fmt.Sprintf("analysis error: %v", err), 0, nil
	}

	for {
		model := c.tiers.at(c.tier)
		desc, err := c.describe(ctx, model, prompt, imageURL)
		if err == nil {
			// The API reports no real confidence; 1.0 marks success only.
			return desc, 1.0, nil
		}
		if isAuthError(err) {
			return "", 0, fmt.Errorf("%w: %v", ErrAuth, err)
		}
		c.logger.Warn("model call failed", "model", model, "error", err)
		if c.tier >= 2 {
			return fmt.Sprintf("analysis error: %v", err), 0, nil
		}
		// Downgrade sticks: later items start at the cheaper tier instead
		// of re-attempting one that already failed.
		c.tier++
		c.logger.Info("downgrading analysis model", "model", c.tiers.at(c.tier))
	}
}

// AnalyzeBatch analyzes the scenes in order, in fixed-size batches with a
// fixed delay between remote calls, and returns the same scenes with
// Description and Confidence filled in. Items whose keyframe is invalid or
// whose calls exhaust all tiers carry an error description and confidence 0;
// the batch continues. Cancellation is polled between items, never mid-call.
func (c *Client) AnalyzeBatch(ctx context.Context, scenes []models.Scene, prompt string, batchSize int, tok *cancel.Token, onScene SceneFunc, onProgress ProgressFunc) ([]models.Scene, error) {
	if !c.configured {
		return scenes, ErrNotConfigured
	}
	if batchSize <= 0 {
		batchSize = 5
	}

	total := len(scenes)
	out := make([]models.Scene, 0, total)
	c.logger.Info("scene analysis started", "scenes", total, "batch_size", batchSize, "model", c.CurrentModel())

	for offset := 0; offset < total; offset += batchSize {
		end := offset + batchSize
		if end > total {
			end = total
		}
		for j, scene := range scenes[offset:end] {
			if tok.Stopped() {
				c.logger.Info("scene analysis stopped", "analyzed", len(out), "total", total)
				return out, nil
			}
			if onProgress != nil {
				onProgress(offset+j, total)
			}

			desc, conf, err := c.Analyze(ctx, scene.FramePath, prompt)
			if err != nil {
				return out, err
			}
			scene.Description = desc
			scene.Confidence = conf
			out = append(out, scene)
			if onScene != nil {
				onScene(scene)
			}

			if c.delay > 0 && offset+j < total-1 {
				time.Sleep(c.delay)
			}
		}
	}

	if onProgress != nil && total > 0 {
		onProgress(total, total)
	}
	c.logger.Info("scene analysis finished", "analyzed", len(out), "model", c.CurrentModel())
	return out, nil
}

// Embed returns an embedding vector for text, used by the vector index.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if !c.configured {
		return nil, ErrNotConfigured
	}
	return c.embed(ctx, text)
}

// encodeImage validates the keyframe file and encodes it as a data URL.
func encodeImage(path string) (string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("keyframe missing: %w", err)
	}
	if fi.Size() == 0 {
		return "", fmt.Errorf("keyframe %s is empty", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	mime := "image/jpeg"
	if filepath.Ext(path) == ".png" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// isAuthError detects credential rejections (401/403) from the API.
func isAuthError(err error) bool {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return apierr.StatusCode == 401 || apierr.StatusCode == 403
	}
	return false
}
