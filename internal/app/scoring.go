package app

import (
	"sort"

	"live-trivia-service/internal/domain"
)

const (
	basePoints   = 100
	maxTimeBonus = 50
)

// Score computes the points for one answer. Incorrect answers earn nothing.
// A correct answer earns 100 base points plus a speed bonus of up to 50,
// linear in the fraction of the time limit left (integer floor).
func Score(correct bool, timeSpent, timeLimit int) int {
	if !correct {
		return 0
	}
	if timeLimit <= 0 {
		return basePoints
	}
	if timeSpent < 0 {
		timeSpent = 0
	}
	if timeSpent > timeLimit {
		timeSpent = timeLimit
	}
	bonus := maxTimeBonus * (timeLimit - timeSpent) / timeLimit
	return basePoints + bonus
}

// clampTimeSpent normalizes the client-reported answer time. A missing or
// zero value counts as the full limit, so no speed bonus is awarded.
func clampTimeSpent(timeSpent, timeLimit int) int {
	if timeSpent <= 0 || timeSpent > timeLimit {
		return timeLimit
	}
	return timeSpent
}

// rankPlayers returns a sorted copy: score descending, ties broken by join
// order, then by id for participants joining at the same instant.
func rankPlayers(players []domain.Participant) []domain.Participant {
	ranked := make([]domain.Participant, len(players))
	copy(ranked, players)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if !ranked[i].JoinedAt.Equal(ranked[j].JoinedAt) {
			return ranked[i].JoinedAt.Before(ranked[j].JoinedAt)
		}
		return ranked[i].ID < ranked[j].ID
	})
	return ranked
}
