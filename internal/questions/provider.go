// Package questions supplies true/false questions to the game engine.
package questions

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/dstadnik/truefalse/internal/models"
)

// Provider hands out the next batch of questions. It may return fewer than n
// when the source is exhausted; the engine treats an empty result as fatal
// for the room's loop.
type Provider interface {
	Next(ctx context.Context, n int) ([]models.Question, error)
}

// MemoryProvider serves a fixed question list in random order. Used in
// development and tests.
type MemoryProvider struct {
	mu        sync.Mutex
	questions []models.Question
}

// NewMemoryProvider returns a provider over the given questions.
func NewMemoryProvider(qs []models.Question) *MemoryProvider {
	return &MemoryProvider{questions: qs}
}

// SeededQuestions builds n placeholder questions, answer alternating by id.
func SeededQuestions(n int) []models.Question {
	qs := make([]models.Question, 0, n)
	for i := 1; i <= n; i++ {
		qs = append(qs, models.Question{
			ID:     i,
			Text:   fmt.Sprintf("Question %d", i),
			Answer: i%2 == 0,
		})
	}
	return qs
}

func (p *MemoryProvider) Next(ctx context.Context, n int) ([]models.Question, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n > len(p.questions) {
		n = len(p.questions)
	}
	picked := make([]models.Question, len(p.questions))
	copy(picked, p.questions)
	rand.Shuffle(len(picked), func(i, j int) {
		picked[i], picked[j] = picked[j], picked[i]
	})
	return picked[:n], nil
}
