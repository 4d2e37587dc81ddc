// Package season labels reading dates with their meteorological-calendar
// season for the northern hemisphere.
package season

import (
	"time"

	"farmsat/internal/types"
)

// boundary is the first (month, day) of a season.
type boundary struct {
	month  time.Month
	day    int
	season types.Season
}

// boundaries are ordered by date within the year. Dates before the first entry
// belong to winter.
var boundaries = []boundary{
	{time.March, 21, types.SeasonSpring},
	{time.June, 21, types.SeasonSummer},
	{time.September, 23, types.SeasonAutumn},
	{time.December, 21, types.SeasonWinter},
}

// Of returns the season for the calendar date of t. A zero time yields
// SeasonUnknown.
//
//	spring  Mar 21 - Jun 20
//	summer  Jun 21 - Sep 22
//	autumn  Sep 23 - Dec 20
//	winter  otherwise
func Of(t time.Time) types.Season {
	if t.IsZero() {
		return types.SeasonUnknown
	}

	_, m, d := t.Date()
	current := types.SeasonWinter
	for _, b := range boundaries {
		if m > b.month || (m == b.month && d >= b.day) {
			current = b.season
		}
	}
	return current
}
