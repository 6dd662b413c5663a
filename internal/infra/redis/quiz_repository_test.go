package redis

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"live-trivia-service/internal/domain"
)

type countingLoader struct {
	quizzes map[int64]domain.Quiz
	calls   int64
}

func (l *countingLoader) LoadQuiz(_ context.Context, quizID int64) (domain.Quiz, error) {
	atomic.AddInt64(&l.calls, 1)
	if quiz, ok := l.quizzes[quizID]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

func TestQuizRepositoryCachesInRedis(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	loader := &countingLoader{quizzes: map[int64]domain.Quiz{
		1: {ID: 1, OwnerID: 7, Title: "Cached", Questions: []domain.Question{{ID: 10, Text: "Q", Options: []domain.Option{{ID: 101, Text: "A", Correct: true}}}}},
	}}
	repo := NewQuizRepository(client, loader, time.Minute)

	quiz, err := repo.GetQuiz(ctx, 1)
	if err != nil {
		t.Fatalf("first get: %v", err)
	}
	if quiz.Title != "Cached" || len(quiz.Questions) != 1 {
		t.Fatalf("unexpected quiz: %+v", quiz)
	}
	if !mr.Exists("quiz:1") {
		t.Fatalf("expected quiz:1 cached")
	}

	// Second read is served from Redis.
	if _, err := repo.GetQuiz(ctx, 1); err != nil {
		t.Fatalf("second get: %v", err)
	}
	if calls := atomic.LoadInt64(&loader.calls); calls != 1 {
		t.Fatalf("expected one loader call, got %d", calls)
	}

	// Cache loss falls back to the loader.
	mr.FlushAll()
	if _, err := repo.GetQuiz(ctx, 1); err != nil {
		t.Fatalf("get after flush: %v", err)
	}
	if calls := atomic.LoadInt64(&loader.calls); calls != 2 {
		t.Fatalf("expected reload after flush, got %d calls", calls)
	}

	// The cached document keeps the correctness flags for scoring.
	if quiz, err = repo.GetQuiz(ctx, 1); err != nil || !quiz.Questions[0].Options[0].Correct {
		t.Fatalf("cached quiz lost correctness flags: %+v err=%v", quiz, err)
	}
}
