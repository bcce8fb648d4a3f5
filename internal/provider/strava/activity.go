package strava

import (
	"fmt"
	"math"
	"time"
)

// Activity is the subset of a Strava activity the storefront uses.
type Activity struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	SportType   string      `json:"sport_type"`
	Distance    float64     `json:"distance"`
	MovingTime  int         `json:"moving_time"`
	ElapsedTime int         `json:"elapsed_time"`
	StartDate   time.Time   `json:"start_date"`
	Map         ActivityMap `json:"map"`
}

type ActivityMap struct {
	SummaryPolyline string `json:"summary_polyline"`
}

// ActivitySummary is what gets printed on a cup.
type ActivitySummary struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Time     string  `json:"time"`
	Distance float64 `json:"distance"`
	Pace     string  `json:"pace,omitempty"`
	Polyline string  `json:"polyline,omitempty"`
}

// RunsOnly keeps activities of type Run.
func RunsOnly(activities []Activity) []Activity {
	runs := make([]Activity, 0, len(activities))
	for _, a := range activities {
		if a.Type == "Run" {
			runs = append(runs, a)
		}
	}
	return runs
}

// Summarize converts an activity into distance in km (2 decimals),
// moving time and pace per km.
func Summarize(a Activity) ActivitySummary {
	km := a.Distance / 1000

	summary := ActivitySummary{
		ID:       a.ID,
		Name:     a.Name,
		Time:     FormatDuration(a.MovingTime),
		Distance: math.Round(km*100) / 100,
		Polyline: a.Map.SummaryPolyline,
	}
	if km > 0 {
		summary.Pace = FormatPace(float64(a.MovingTime) / km)
	}

	return summary
}

// FormatDuration renders h:mm:ss from one hour on, m:ss below.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	if seconds >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// FormatPace renders seconds per km as m:ss.
func FormatPace(secondsPerKm float64) string {
	if secondsPerKm <= 0 {
		return ""
	}
	total := int(math.RoundToEven(secondsPerKm))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
