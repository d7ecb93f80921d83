// Package openai provides a tagger.Tagger backed by an OpenAI-compatible
// chat completion API.
//
// The model is instructed to answer in TreeTagger's tab-separated format so
// its reply goes through the same normalisation as real TreeTagger output.
// Useful where no TreeTagger installation is available; tags are only as
// good as the model.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/syoon9/CEFRJ-annotator/pkg/tagger"
)

// SystemPrompt instructs the model to behave like TreeTagger with the English
// Penn Treebank tagset.
const SystemPrompt = `You are a part-of-speech tagger that emulates TreeTagger with the English parameter file.
Tokenize the user's sentence and output one token per line as: token<TAB>tag<TAB>lemma
Use the TreeTagger English tagset (Penn Treebank tags with VB/VH/VV distinctions and SENT for sentence-final punctuation).
Output nothing else: no explanations, no numbering, no code fences.`

// Tagger implements tagger.Tagger using the OpenAI API.
type Tagger struct {
	client oai.Client
	model  string
}

type config struct {
	baseURL    string
	timeout    time.Duration
	maxRetries int
}

// Option is a functional option for Tagger.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL, e.g. for a local
// OpenAI-compatible server.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithMaxRetries sets how often a failed request is retried by the client.
// Negative values keep the SDK default.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.maxRetries = n
	}
}

// New constructs a Tagger for model.
func New(apiKey, model string, opts ...Option) (*Tagger, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{maxRetries: -1}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}
	if cfg.maxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(cfg.maxRetries))
	}

	return &Tagger{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Tag implements tagger.Tagger.
func (t *Tagger) Tag(ctx context.Context, sentence string) (string, error) {
	resp, err := t.client.Chat.Completions.New(ctx, t.buildParams(sentence))
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w: %w", tagger.ErrTaggerFailed, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices in response: %w", tagger.ErrNoOutput)
	}

	blob, err := tagger.Normalize(resp.Choices[0].Message.Content)
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	return blob, nil
}

func (t *Tagger) buildParams(sentence string) oai.ChatCompletionNewParams {
	return oai.ChatCompletionNewParams{
		Model: shared.ChatModel(t.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(SystemPrompt),
			oai.UserMessage(tagger.Preprocess(sentence)),
		},
		Temperature: param.NewOpt(0.0),
	}
}

var _ tagger.Tagger = (*Tagger)(nil)
