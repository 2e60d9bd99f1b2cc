package questions

import (
	"context"
	"testing"
)

func TestSeededQuestions(t *testing.T) {
	qs := SeededQuestions(4)
	if len(qs) != 4 {
		t.Fatalf("len = %d, want 4", len(qs))
	}
	for i, q := range qs {
		if q.ID != i+1 {
			t.Errorf("question %d has id %d", i, q.ID)
		}
		if q.Answer != (q.ID%2 == 0) {
			t.Errorf("question %d answer = %v", q.ID, q.Answer)
		}
	}
}

func TestMemoryProvider_Next(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider(SeededQuestions(10))

	qs, err := p.Next(ctx, 3)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(qs) != 3 {
		t.Errorf("len = %d, want 3", len(qs))
	}
	seen := map[int]bool{}
	for _, q := range qs {
		if seen[q.ID] {
			t.Errorf("duplicate question id %d in one batch", q.ID)
		}
		seen[q.ID] = true
	}

	// Asking for more than the pool holds caps at the pool size.
	qs, err = p.Next(ctx, 50)
	if err != nil || len(qs) != 10 {
		t.Errorf("Next(50) = %d questions, %v; want 10, nil", len(qs), err)
	}
}

func TestMemoryProvider_Empty(t *testing.T) {
	p := NewMemoryProvider(nil)
	qs, err := p.Next(context.Background(), 1)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(qs) != 0 {
		t.Errorf("len = %d, want 0", len(qs))
	}
}
