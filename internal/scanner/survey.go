package scanner

import (
	"context"
	"sort"
	"strconv"

	"tablowatch/internal/filter"
	"tablowatch/internal/models"
	"tablowatch/internal/tablo"
)

// SurveyConfig controls a one-shot survey of upcoming tables.
type SurveyConfig struct {
	Days            int
	MinParticipants int
	MaxDistanceKm   float64
	AgeMin          string
	AgeMax          string
	ItemsPerPage    int
}

// SurveyTable is a table that passed the survey filters.
type SurveyTable struct {
	Date       string
	DistanceKm float64
	Balanced   bool
	Table      models.TableState
}

// SurveyResult summarises a survey.
type SurveyResult struct {
	Total    int
	Balanced int
	Tables   []SurveyTable
}

// Survey lists tables for the next cfg.Days days (starting tomorrow) and
// keeps those with enough participants within the distance limit. Failures
// for one day or one table are logged and skipped.
func (s *Scanner) Survey(ctx context.Context, cfg SurveyConfig) (*SurveyResult, error) {
	result := &SurveyResult{}
	perPage := cfg.ItemsPerPage
	if perPage <= 0 {
		perPage = 20
	}

	for offset := 1; offset <= cfg.Days; offset++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		day := s.clock.Now().AddDate(0, 0, offset)
		date := day.Format("2006-01-02")

		filters := s.filters(day)
		filters.AgeMin = cfg.AgeMin
		filters.AgeMax = cfg.AgeMax
		filters.ItemPerPage = strconv.Itoa(perPage)

		list, err := s.fetcher.ListTables(ctx, filters)
		s.pause()
		if err != nil {
			s.logger.Warnf("Failed to list tables for %s: %v", date, err)
			continue
		}
		if err := tablo.CheckStatus(list.Code, list.Message); err != nil {
			s.logger.Warnf("Listing for %s: %v", date, err)
			continue
		}
		result.Total += len(list.Tables)

		kept := make([]SurveyTable, 0)
		for _, summary := range list.Tables {
			resp, err := s.fetcher.GetTable(ctx, summary.TableID)
			s.pause()
			if err != nil {
				s.logger.Warnf("Failed to get table %s: %v", summary.TableID, err)
				continue
			}
			if !resp.OK() {
				s.logger.Warnf("API returned error code %d for table %s", resp.Code, summary.TableID)
				continue
			}

			state := resp.Table.State(summary.TableID, s.clock.Now())
			if !filter.HasMinimumParticipants(state, cfg.MinParticipants) {
				continue
			}
			distance, known := summary.DistanceKm()
			if !filter.IsWithinDistance(distance, known, cfg.MaxDistanceKm) {
				continue
			}

			balanced := filter.HasGenderBalance(state)
			if balanced {
				result.Balanced++
			}
			kept = append(kept, SurveyTable{Date: date, DistanceKm: distance, Balanced: balanced, Table: state})
		}

		sort.SliceStable(kept, func(i, j int) bool { return kept[i].DistanceKm < kept[j].DistanceKm })
		result.Tables = append(result.Tables, kept...)
	}

	return result, nil
}
