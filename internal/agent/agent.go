// Package agent coordinates the review pipeline: it serializes work per
// session, consults the cache, invokes the model, scores the output, and
// persists the result.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/parcom/reviewd/internal/cache"
	"github.com/parcom/reviewd/internal/llm"
	"github.com/parcom/reviewd/internal/review"
	"github.com/parcom/reviewd/internal/search"
	"github.com/parcom/reviewd/internal/session"
)

// ErrEmptyCode rejects a submission with no code before any other work.
var ErrEmptyCode = errors.New("no code provided")

// Submission is one review request from a client.
type Submission struct {
	Code     string
	Category string
	Language string

	// Stream asks the model for incremental fragments; onFragment in Run
	// receives them as they arrive.
	Stream bool
}

// Agent runs reviews against one configured model.
type Agent struct {
	model    llm.Client
	prompts  *review.PromptLibrary
	sessions *session.Store
	cache    *cache.Cache
	index    *search.Index

	maxTokens int
}

// New wires an agent. index may be nil to disable search indexing.
func New(model llm.Client, prompts *review.PromptLibrary, sessions *session.Store, c *cache.Cache, index *search.Index, maxTokens int) *Agent {
	return &Agent{
		model:     model,
		prompts:   prompts,
		sessions:  sessions,
		cache:     c,
		index:     index,
		maxTokens: maxTokens,
	}
}

// Run executes one review in the named session. The session's lock is held
// for the entire run, including the model call, so concurrent submissions
// to the same session serialize rather than interleave. onFragment may be
// nil; with sub.Stream set it receives response fragments in order.
//
// Session state is only mutated after the model call succeeds: a failed run
// leaves history and reviews untouched.
func (a *Agent) Run(ctx context.Context, sessionName string, sub Submission, onFragment func(string)) (review.Review, error) {
	if sub.Code == "" {
		return review.Review{}, ErrEmptyCode
	}
	category := review.ParseCategory(sub.Category)
	language := sub.Language
	if language == "" {
		language = review.DefaultLanguage
	}

	note, err := review.ValidateLanguage(sub.Code, language)
	if err != nil {
		return review.Review{}, err
	}

	s, err := a.sessions.Get(ctx, sessionName)
	if err != nil {
		return review.Review{}, err
	}
	s.Lock()
	defer s.Unlock()

	cacheKey := cache.Key(sub.Code, category, language, a.model.Model())
	if entry, ok := a.cache.Get(ctx, cacheKey); ok {
		if onFragment != nil {
			onFragment(entry.Review.Result)
		}
		a.record(ctx, s, sub.Code, entry.Review)
		return entry.Review, nil
	}

	req := llm.Request{
		System:    a.prompts.System(category),
		User:      review.BuildUserPrompt(sub.Code, language),
		MaxTokens: a.maxTokens,
		Stream:    sub.Stream,
	}
	res, err := a.model.Generate(ctx, req)
	if err != nil {
		return review.Review{}, fmt.Errorf("model call failed: %w", err)
	}

	if note != "" && onFragment != nil {
		onFragment(note)
	}
	text, err := llm.Accumulate(ctx, res, onFragment)
	if err != nil {
		return review.Review{}, err
	}

	confidence := review.ExtractConfidence(text)
	r := review.New(sub.Code, category, language, note+text, confidence)

	a.record(ctx, s, sub.Code, r)

	if err := a.cache.Set(ctx, cacheKey, r); err != nil {
		log.Printf("failed to cache review %s: %v", r.ID, err)
	}
	if a.index != nil {
		if err := a.index.Add(r); err != nil {
			log.Printf("failed to index review %s: %v", r.ID, err)
		}
	}
	return r, nil
}

// record appends the conversation turns and review, then persists. Caller
// must hold the session lock.
func (a *Agent) record(ctx context.Context, s *session.Session, code string, r review.Review) {
	s.AppendMessage("user", code)
	s.AppendMessage("assistant", r.Result)
	s.AppendReview(r)
	if err := a.sessions.Persist(ctx, s); err != nil {
		log.Printf("failed to persist session %s: %v", s.Name(), err)
	}
}

// Reviews returns a copy of the named session's completed reviews.
func (a *Agent) Reviews(ctx context.Context, sessionName string) ([]review.Review, error) {
	s, err := a.sessions.Get(ctx, sessionName)
	if err != nil {
		return nil, err
	}
	s.Lock()
	defer s.Unlock()
	return s.Reviews(), nil
}

// History returns a copy of the named session's conversation history.
func (a *Agent) History(ctx context.Context, sessionName string) ([]session.Message, error) {
	s, err := a.sessions.Get(ctx, sessionName)
	if err != nil {
		return nil, err
	}
	s.Lock()
	defer s.Unlock()
	return s.History(), nil
}

// Search returns the top k indexed reviews matching query.
func (a *Agent) Search(query string, k int) ([]search.Result, error) {
	if a.index == nil {
		return nil, errors.New("search index disabled")
	}
	return a.index.Search(query, k)
}
