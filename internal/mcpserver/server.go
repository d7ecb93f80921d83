// Package mcpserver exposes the annotator as Model Context Protocol tools so
// that agents can annotate sentences, apply corrections and inspect the
// pattern table.
//
// Three tools are registered:
//   - "annotate_sentence" tags one sentence and returns its pattern matches.
//   - "apply_corrections" applies token edits and returns the corrected text.
//   - "list_patterns" lists the loaded pattern definitions.
//
// All handlers are safe for concurrent use.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/syoon9/CEFRJ-annotator/internal/annotate"
	"github.com/syoon9/CEFRJ-annotator/internal/observe"
	"github.com/syoon9/CEFRJ-annotator/pkg/correction"
	"github.com/syoon9/CEFRJ-annotator/pkg/pattern"
)

// Tool names.
const (
	ToolAnnotate   = "annotate_sentence"
	ToolCorrect    = "apply_corrections"
	ToolPatterns   = "list_patterns"
	implementation = "cefrj-annotator"
)

// AnnotateArgs is the input of the annotate_sentence tool.
type AnnotateArgs struct {
	Sentence string `json:"sentence" jsonschema:"the learner sentence to annotate, words separated by spaces"`
}

// EditArg is one token edit of the apply_corrections tool.
type EditArg struct {
	Start       int      `json:"start" jsonschema:"index of the first replaced token"`
	End         int      `json:"end" jsonschema:"index one past the last replaced token; equal to start for an insertion"`
	Replacement []string `json:"replacement,omitempty" jsonschema:"tokens to insert; empty deletes the range"`
}

// CorrectArgs is the input of the apply_corrections tool.
type CorrectArgs struct {
	Tokens []string  `json:"tokens" jsonschema:"the original sentence tokens"`
	Edits  []EditArg `json:"edits" jsonschema:"edits expressed against the original token indices"`
}

// CorrectResult is the output of the apply_corrections tool.
type CorrectResult struct {
	Tokens       []string `json:"tokens"`
	Sentence     string   `json:"sentence"`
	EditDistance int      `json:"edit_distance"`
	Similarity   float64  `json:"similarity"`
	Diff         string   `json:"diff"`
}

// PatternsArgs is the (empty) input of the list_patterns tool.
type PatternsArgs struct{}

// PatternsResult is the output of the list_patterns tool.
type PatternsResult struct {
	Patterns []pattern.Definition `json:"patterns"`
}

// Option configures a [Server].
type Option func(*Server)

// WithMetrics sets the metrics sink. The default is [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithVersion sets the version reported during initialisation.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// Server is an MCP server backed by an [annotate.Annotator].
type Server struct {
	a       *annotate.Annotator
	metrics *observe.Metrics
	version string
	srv     *mcpsdk.Server
}

// New creates a Server and registers its tools.
func New(a *annotate.Annotator, opts ...Option) *Server {
	s := &Server{
		a:       a,
		metrics: observe.DefaultMetrics(),
		version: "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.srv = mcpsdk.NewServer(&mcpsdk.Implementation{Name: implementation, Version: s.version}, nil)

	mcpsdk.AddTool(s.srv, &mcpsdk.Tool{
		Name:        ToolAnnotate,
		Description: "Tag an English learner sentence and report every CEFR-J grammar pattern it contains, with word spans.",
	}, instrument(s, ToolAnnotate, s.annotateSentence))
	mcpsdk.AddTool(s.srv, &mcpsdk.Tool{
		Name:        ToolCorrect,
		Description: "Apply M2-style token edits to a sentence and return the corrected sentence with a word diff.",
	}, instrument(s, ToolCorrect, s.applyCorrections))
	mcpsdk.AddTool(s.srv, &mcpsdk.Tool{
		Name:        ToolPatterns,
		Description: "List the loaded grammar pattern definitions.",
	}, instrument(s, ToolPatterns, s.listPatterns))

	return s
}

// MCP returns the underlying SDK server.
func (s *Server) MCP() *mcpsdk.Server { return s.srv }

// Run serves over stdin/stdout until ctx is cancelled or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	if err := s.srv.Run(ctx, &mcpsdk.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcpserver: run: %w", err)
	}
	return nil
}

// Connect serves a single session over t. It is used by tests with
// in-memory transports.
func (s *Server) Connect(ctx context.Context, t mcpsdk.Transport) (*mcpsdk.ServerSession, error) {
	ss, err := s.srv.Connect(ctx, t, nil)
	if err != nil {
		return nil, fmt.Errorf("mcpserver: connect: %w", err)
	}
	return ss, nil
}

// instrument wraps a tool handler with a span, a log line and the tool call
// counter.
func instrument[In, Out any](s *Server, name string, h mcpsdk.ToolHandlerFor[In, Out]) mcpsdk.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest, in In) (*mcpsdk.CallToolResult, Out, error) {
		ctx, span := observe.StartSpan(ctx, "mcp.tool."+name, observe.Attr("tool", name))
		res, out, err := h(ctx, req, in)
		s.metrics.RecordToolCall(ctx, name, observe.Status(err))
		if err != nil {
			observe.Logger(ctx).Warn("tool call failed", "tool", name, "err", err)
		}
		observe.EndSpan(span, err)
		return res, out, err
	}
}

func (s *Server) annotateSentence(ctx context.Context, _ *mcpsdk.CallToolRequest, args AnnotateArgs) (*mcpsdk.CallToolResult, annotate.Result, error) {
	sentence := strings.Join(strings.Fields(args.Sentence), " ")
	if sentence == "" {
		return nil, annotate.Result{}, errors.New("sentence must not be empty")
	}
	res, err := s.a.Annotate(ctx, sentence)
	if err != nil {
		return nil, annotate.Result{}, err
	}
	return nil, *res, nil
}

func (s *Server) applyCorrections(_ context.Context, _ *mcpsdk.CallToolRequest, args CorrectArgs) (*mcpsdk.CallToolResult, CorrectResult, error) {
	edits := make([]correction.Edit, len(args.Edits))
	for i, e := range args.Edits {
		edits[i] = correction.Edit{Start: e.Start, End: e.End, Replacement: e.Replacement}
	}
	if err := correction.Validate(len(args.Tokens), edits); err != nil {
		return nil, CorrectResult{}, err
	}

	corrected := correction.Apply(args.Tokens, edits)
	sum := correction.Summarize(args.Tokens, edits)
	return nil, CorrectResult{
		Tokens:       corrected,
		Sentence:     sum.Corrected,
		EditDistance: sum.EditDistance,
		Similarity:   sum.Similarity,
		Diff:         correction.WordDiff(args.Tokens, corrected),
	}, nil
}

func (s *Server) listPatterns(context.Context, *mcpsdk.CallToolRequest, PatternsArgs) (*mcpsdk.CallToolResult, PatternsResult, error) {
	return nil, PatternsResult{Patterns: s.a.Matcher().Definitions()}, nil
}
