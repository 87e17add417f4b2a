package earnings

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"trashdrop/request"
)

type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
	PeriodAll   Period = "all"
)

// ParsePeriod accepts the period names plus "today" for day. Empty means week.
func ParsePeriod(s string) (Period, error) {
	switch s {
	case "":
		return PeriodWeek, nil
	case "today":
		return PeriodDay, nil
	case string(PeriodDay), string(PeriodWeek), string(PeriodMonth), string(PeriodYear), string(PeriodAll):
		return Period(s), nil
	}
	return "", fmt.Errorf("unknown period %q", s)
}

// Start returns the beginning of the period containing now. Weeks start on
// Monday. PeriodAll returns the zero time.
func (p Period) Start(now time.Time) time.Time {
	y, m, d := now.Date()
	loc := now.Location()
	switch p {
	case PeriodDay:
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	case PeriodWeek:
		offset := (int(now.Weekday()) + 6) % 7
		return time.Date(y, m, d-offset, 0, 0, 0, 0, loc)
	case PeriodMonth:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc)
	case PeriodYear:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
	}
	return time.Time{}
}

type TypeSummary struct {
	Count    int             `json:"count"`
	Earnings decimal.Decimal `json:"earnings"`
}

type Summary struct {
	CollectorID   string                  `json:"collector_id"`
	Period        Period                  `json:"period"`
	From          time.Time               `json:"from,omitzero"`
	To            time.Time               `json:"to"`
	TotalEarnings decimal.Decimal         `json:"total_earnings"`
	CompletedJobs int                     `json:"completed_jobs"`
	AveragePerJob decimal.Decimal         `json:"average_per_job"`
	TotalPoints   float64                 `json:"total_points"`
	ByWasteType   map[string]*TypeSummary `json:"by_waste_type"`
	Impact        request.Impact          `json:"environmental_impact"`
}

// Summarize totals the completed requests of collectorID whose completion
// falls in the period ending at now.
func Summarize(reqs []*request.Request, collectorID string, period Period, now time.Time) Summary {
	from := period.Start(now)
	s := Summary{
		CollectorID:   collectorID,
		Period:        period,
		From:          from,
		To:            now,
		TotalEarnings: decimal.Zero,
		AveragePerJob: decimal.Zero,
		ByWasteType:   make(map[string]*TypeSummary),
	}

	var co2, water, trees decimal.Decimal
	for _, r := range completedIn(reqs, collectorID, from, now) {
		fee := decimal.NewFromFloat(request.Value(r.Fee))
		s.TotalEarnings = s.TotalEarnings.Add(fee)
		s.CompletedJobs++
		s.TotalPoints += request.Value(r.Points)

		wasteType := string(r.Type)
		if wasteType == "" {
			wasteType = "unknown"
		}
		ts, ok := s.ByWasteType[wasteType]
		if !ok {
			ts = &TypeSummary{Earnings: decimal.Zero}
			s.ByWasteType[wasteType] = ts
		}
		ts.Count++
		ts.Earnings = ts.Earnings.Add(fee).Round(2)

		if imp := r.EnvironmentalImpact; imp != nil {
			co2 = co2.Add(decimal.NewFromFloat(imp.CO2Saved))
			water = water.Add(decimal.NewFromFloat(imp.WaterSaved))
			trees = trees.Add(decimal.NewFromFloat(imp.TreesSaved))
		}
	}

	s.TotalEarnings = s.TotalEarnings.Round(2)
	if s.CompletedJobs > 0 {
		s.AveragePerJob = s.TotalEarnings.Div(decimal.NewFromInt(int64(s.CompletedJobs))).Round(2)
	}
	s.Impact = request.Impact{
		CO2Saved:   co2.Round(1).InexactFloat64(),
		WaterSaved: water.Round(0).InexactFloat64(),
		TreesSaved: trees.Round(2).InexactFloat64(),
	}
	return s
}

func completedIn(reqs []*request.Request, collectorID string, from, to time.Time) []*request.Request {
	out := make([]*request.Request, 0)
	for _, r := range reqs {
		if r == nil || r.Status != request.StatusCompleted || r.CollectorID != collectorID {
			continue
		}
		if r.CompletedAt == nil || r.CompletedAt.Before(from) || r.CompletedAt.After(to) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CompletedAt.Before(*out[j].CompletedAt)
	})
	return out
}
