// Package filter holds scalar predicates over tables.
package filter

import "tablowatch/internal/models"

// HasMinimumParticipants reports whether t has at least min participants.
func HasMinimumParticipants(t models.TableState, min int) bool {
	return len(t.Participants) >= min
}

// IsWithinDistance reports whether distanceKm is at most maxKm. An unknown
// distance never qualifies.
func IsWithinDistance(distanceKm float64, known bool, maxKm float64) bool {
	return known && distanceKm <= maxKm
}

// GenderCounts returns the male and female participant counts.
func GenderCounts(t models.TableState) (male, female int) {
	for _, p := range t.Participants {
		if p.IsMale {
			male++
		}
	}
	return male, len(t.Participants) - male
}

// HasGenderBalance reports whether male and female counts differ by at most one.
func HasGenderBalance(t models.TableState) bool {
	male, female := GenderCounts(t)
	diff := male - female
	return diff >= -1 && diff <= 1
}
