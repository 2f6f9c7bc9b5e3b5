// Package assist routes the editor's AI text operations to the completion provider.
package assist

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"caredraft/internal/cache"
	"caredraft/internal/core"
	"caredraft/internal/llmclient"
)

// MaxTextLength is the largest input accepted, in characters.
const MaxTextLength = 20000

// Operation is one editor context-menu action.
type Operation string

// Operations
const (
	OpImprove             Operation = "improve"
	OpGrammar             Operation = "grammar"
	OpSummarize           Operation = "summarize"
	OpExpand              Operation = "expand"
	OpShorten             Operation = "shorten"
	OpTone                Operation = "tone"
	OpExtractRequirements Operation = "extract_requirements"
)

// Tone is the target register for OpTone.
type Tone string

// Tones
const (
	ToneProfessional Tone = "professional"
	ToneFriendly     Tone = "friendly"
	TonePersuasive   Tone = "persuasive"
	ToneFormal       Tone = "formal"
)

func (t Tone) valid() bool {
	switch t {
	case ToneProfessional, ToneFriendly, TonePersuasive, ToneFormal:
		return true
	}
	return false
}

// Extraction reports whether op belongs to the extraction endpoint class.
func (op Operation) Extraction() bool {
	return op == OpExtractRequirements
}

const systemBase = "You help care providers write tender responses for public-sector contracts. " +
	"Keep the author's facts, figures and commitments. Reply with the rewritten text only."

var prompts = map[Operation]string{
	OpImprove:   "Improve the clarity, flow and impact of the text while keeping its meaning.",
	OpGrammar:   "Correct spelling, grammar and punctuation. Change nothing else.",
	OpSummarize: "Summarise the text in a short paragraph.",
	OpExpand:    "Expand the text with relevant detail an evaluator would look for, without inventing facts.",
	OpShorten:   "Shorten the text by roughly half while keeping every commitment.",
	OpTone:      "Rewrite the text in a %s tone.",
	OpExtractRequirements: "List every requirement, obligation or evaluation criterion stated in the tender text. " +
		"Write one requirement per line with no numbering and no commentary.",
}

// Request is one assist call.
type Request struct {
	Operation Operation `json:"operation"`
	Text      string    `json:"text"`
	Tone      Tone      `json:"tone,omitempty"`
}

// Result is the outcome of an assist call.
type Result struct {
	Operation    Operation `json:"operation"`
	Text         string    `json:"text,omitempty"`
	Requirements []string  `json:"requirements,omitempty"`
	Cached       bool      `json:"cached"`
}

// Completer produces a completion for a prompt.
type Completer interface {
	Complete(ctx context.Context, req llmclient.CompletionRequest) (string, error)
}

// Router validates assist requests and memoizes their results.
type Router struct {
	completer Completer
	cache     *cache.Store[*Result]
}

// NewRouter creates a router. A nil completer makes every call fail as unavailable.
func NewRouter(completer Completer, results *cache.Store[*Result]) *Router {
	if results == nil {
		results = cache.New[*Result](cache.Options{Name: "assist", DefaultTTL: cache.PresetResearch.TTL()})
	}
	return &Router{completer: completer, cache: results}
}

// Validate checks req without calling the provider.
func Validate(req Request) error {
	if _, ok := prompts[req.Operation]; !ok {
		return core.NewInvalidRequestError(fmt.Sprintf("unknown operation %q", req.Operation), nil)
	}
	if strings.TrimSpace(req.Text) == "" {
		return core.NewInvalidRequestError("text is required", nil)
	}
	if utf8.RuneCountInString(req.Text) > MaxTextLength {
		return core.NewInvalidRequestError(fmt.Sprintf("text exceeds %d characters", MaxTextLength), nil)
	}
	if req.Operation == OpTone && !req.Tone.valid() {
		return core.NewInvalidRequestError("tone must be one of professional, friendly, persuasive, formal", nil)
	}
	return nil
}

// Run executes req, serving a cached result for identical input.
func (r *Router) Run(ctx context.Context, req Request) (*Result, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}
	if req.Operation != OpTone {
		req.Tone = ""
	}
	if r.completer == nil {
		return nil, core.NewProviderError(llmclient.ProviderName, http.StatusServiceUnavailable, "AI assist is not configured", nil)
	}

	fetched := false
	res, err := r.cache.GetOrFetch(ctx, cacheKey(req), func(ctx context.Context) (*Result, error) {
		fetched = true
		return r.complete(ctx, req)
	}, cache.PresetResearch.Options())
	if err != nil {
		return nil, err
	}

	out := *res
	out.Requirements = append([]string(nil), res.Requirements...)
	out.Cached = !fetched
	return &out, nil
}

func (r *Router) complete(ctx context.Context, req Request) (*Result, error) {
	instruction := prompts[req.Operation]
	if req.Operation == OpTone {
		instruction = fmt.Sprintf(instruction, req.Tone)
	}

	text, err := r.completer.Complete(ctx, llmclient.CompletionRequest{
		System: systemBase + " " + instruction,
		User:   req.Text,
	})
	if err != nil {
		return nil, err
	}

	res := &Result{Operation: req.Operation}
	if req.Operation == OpExtractRequirements {
		res.Requirements = parseRequirements(text)
	} else {
		res.Text = strings.TrimSpace(text)
	}
	return res, nil
}

func cacheKey(req Request) string {
	return cache.Key("assist", url.Values{
		"op":   {string(req.Operation)},
		"tone": {string(req.Tone)},
		"text": {cache.Digest(req.Text)},
	})
}

var listMarker = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s*`)

// parseRequirements splits a completion into one requirement per non-empty line,
// dropping list markers and duplicates.
func parseRequirements(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(listMarker.ReplaceAllString(line, ""))
		if line == "" {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
