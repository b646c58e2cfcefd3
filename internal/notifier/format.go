package notifier

import (
	"fmt"
	"strings"
	"time"

	"tablowatch/internal/filter"
	"tablowatch/internal/models"
	"tablowatch/internal/tablo"
)

const timeLayout = "2006-01-02 15:04:05"

func formatUserJoined(ev models.UserJoined, table models.TableState, user models.Participant, now time.Time) string {
	others := make([]models.Participant, 0, len(table.Participants))
	for _, p := range table.Participants {
		if p.UserID != user.UserID {
			others = append(others, p)
		}
	}
	othersText := "   (No other participants)"
	if len(others) > 0 {
		othersText = formatParticipants(others)
	}
	male, female := filter.GenderCounts(table)

	return strings.Join([]string{
		"🎉 MONITORED USER JOINED TABLE",
		"",
		"👤 User Details:",
		formatUserInfo(user, now),
		"",
		"🏪 Restaurant: " + table.VenueName,
		"📍 Table ID: " + ev.TableID(),
		"",
		fmt.Sprintf("👥 Other participants (%d):", len(others)),
		othersText,
		"",
		fmt.Sprintf("📊 Total participants: %d", len(table.Participants)),
		fmt.Sprintf("♂️ Male: %d", male),
		fmt.Sprintf("♀️ Female: %d", female),
		"⏰ Time: " + now.Format(timeLayout),
	}, "\n")
}

func formatUserLeft(ev models.UserLeft, now time.Time) string {
	name := ev.Participant.FullName()
	if name == "" {
		name = "Unknown"
	}
	return strings.Join([]string{
		"🚪 MONITORED USER LEFT TABLE",
		"",
		"👤 User: " + name,
		"🏪 Restaurant: " + ev.TableName(),
		"📍 Table ID: " + ev.TableID(),
		"⏰ Time: " + now.Format(timeLayout),
	}, "\n")
}

func formatParticipantChange(joined bool, ref models.TableRef, p models.Participant, table models.TableState, watched models.WatchSet, now time.Time) string {
	emoji, action := "➖", "LEFT"
	if joined {
		emoji, action = "➕", "JOINED"
	}

	lines := []string{
		fmt.Sprintf("%s PARTICIPANT %s MONITORED TABLE", emoji, action),
		"",
		fmt.Sprintf("👤 Participant: %s (ID: %s)", p.FullName(), p.UserID),
		"🏪 Restaurant: " + ref.Name,
		"📍 Table ID: " + ref.ID,
	}
	if names := watchedNames(table, watched); names != "" {
		lines = append(lines, "👥 Monitored users at table: "+names)
	}
	lines = append(lines,
		"",
		"📊 Current table status:",
		formatParticipants(table.Participants),
		"⏰ Time: "+now.Format(timeLayout),
	)
	return strings.Join(lines, "\n")
}

func formatTableUpdated(ev models.TableUpdated, table models.TableState, watched models.WatchSet, now time.Time) string {
	lines := []string{
		"🔄 TABLE UPDATED",
		"",
		"🏪 Restaurant: " + ev.TableName(),
		"📍 Table ID: " + ev.TableID(),
	}
	if names := watchedNames(table, watched); names != "" {
		lines = append(lines, "👥 Monitored users: "+names)
	}
	lines = append(lines,
		"",
		"📊 Current participants:",
		formatParticipants(table.Participants),
		"⏰ Time: "+now.Format(timeLayout),
	)
	return strings.Join(lines, "\n")
}

func formatUserInfo(user models.Participant, now time.Time) string {
	gender := "♀️"
	if user.IsMale {
		gender = "♂️"
	}
	birth := user.BirthDate
	if age, ok := ageAt(user.BirthDate, now); ok {
		birth = fmt.Sprintf("%s (%d years old)", user.BirthDate, age)
	}
	status := "Invited"
	if user.IsConfirmed {
		status = "Confirmed participant"
	}
	return strings.Join([]string{
		"   Name: " + user.FullName(),
		"   Gender: " + gender,
		"   Birth Date: " + birth,
		"   Status: " + status,
	}, "\n")
}

func formatParticipants(participants []models.Participant) string {
	if len(participants) == 0 {
		return "   (No participants)"
	}
	lines := make([]string, 0, len(participants))
	for _, p := range participants {
		gender := "♀️"
		if p.IsMale {
			gender = "♂️"
		}
		status := "⏳"
		if p.IsConfirmed {
			status = "✅"
		}
		lines = append(lines, fmt.Sprintf("   %s %s %s", status, gender, p.FullName()))
	}
	return strings.Join(lines, "\n")
}

func watchedNames(table models.TableState, watched models.WatchSet) string {
	var names []string
	for _, p := range table.Participants {
		if watched.Has(p.UserID) {
			names = append(names, p.FullName())
		}
	}
	return strings.Join(names, ", ")
}

// ageAt returns the age in whole years on now of someone born on birthDate
// (YYYY-MM-DD, optionally followed by a time part).
func ageAt(birthDate string, now time.Time) (int, bool) {
	if len(birthDate) < 10 {
		return 0, false
	}
	birth, err := time.Parse("2006-01-02", birthDate[:10])
	if err != nil {
		return 0, false
	}
	age := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		age--
	}
	return age, true
}

// FormatSurveyTable renders one survey hit.
func FormatSurveyTable(table models.TableState, date string, distanceKm float64) string {
	lines := []string{
		"🍽️ " + table.VenueName,
		"📅 Date: " + date,
		fmt.Sprintf("📍 Distance: %.1fkm", distanceKm),
		fmt.Sprintf("👥 Participants (%d):", len(table.Participants)),
	}
	for _, p := range table.Participants {
		gender := "👩"
		if p.IsMale {
			gender = "👨"
		}
		year := p.BirthDate
		if len(year) >= 4 {
			year = year[:4]
		}
		lines = append(lines, fmt.Sprintf("  %s %s (%s)", gender, p.FullName(), year))
	}
	return strings.Join(lines, "\n")
}

// FormatSurveySummary renders the closing survey message.
func FormatSurveySummary(total, balanced, days int) string {
	if balanced == 0 {
		return fmt.Sprintf("⚖️ No gender-balanced tables found in the next %d days. Found %d tables in total.", days, total)
	}
	return fmt.Sprintf("📊 Multi-day scan complete: %d tables in total, %d gender-balanced (next %d days)", total, balanced, days)
}

// FormatRestaurantUser renders one suggested person as a single line.
func FormatRestaurantUser(p tablo.Person) string {
	dist := "-"
	if d, ok := p.DistanceKm(); ok {
		dist = fmt.Sprintf("%.2f", d)
	}
	part := "?"
	if n, ok := p.ParticipationCount(); ok {
		part = fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("• %s %s (%s) | part=%s | dist=%skm", p.GivenName, p.FamilyName, p.BirthYear(), part, dist)
}

// FormatRestaurantUsersSummary reports how many people were listed.
func FormatRestaurantUsersSummary(found, kept int) string {
	return fmt.Sprintf("Users found: %d (filtered=%d)", found, kept)
}
