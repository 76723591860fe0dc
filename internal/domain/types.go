package domain

import "time"

// CriterionKind selects how a stored week is located.
type CriterionKind int

const (
	ByID CriterionKind = iota
	ByDate
	Current
)

// WeekCriterion identifies a stored week for loading or deletion.
//
// Common use cases:
//   - "Resume after restart": CurrentWeek(time.Now())
//   - "Open a known week": WeekByID(id)
//   - "Week of a given reference date": WeekByDate(date), normalized to its Monday
type WeekCriterion struct {
	Kind CriterionKind
	ID   string    // used by ByID
	Date time.Time // used by ByDate (normalized to week start) and Current (the "now" instant)
}

// WeekByID locates a week by its identifier.
func WeekByID(id string) WeekCriterion {
	return WeekCriterion{Kind: ByID, ID: id}
}

// WeekByDate locates the week whose start is the Monday containing date.
func WeekByDate(date time.Time) WeekCriterion {
	return WeekCriterion{Kind: ByDate, Date: WeekStart(date)}
}

// CurrentWeek locates the stored week whose seven days contain now.
func CurrentWeek(now time.Time) WeekCriterion {
	return WeekCriterion{Kind: Current, Date: now}
}

func (c WeekCriterion) String() string {
	switch c.Kind {
	case ByID:
		return "id=" + c.ID
	case ByDate:
		return "date=" + c.Date.Format(DateLayout)
	default:
		return "current=" + c.Date.Format(time.RFC3339)
	}
}

// DeleteResult reports how many weeks a deletion removed (0 or 1).
type DeleteResult struct {
	DeletedWeeks int `json:"deletedWeeks"`
}

// CleanupResult reports the rows removed by a full scheduler cleanup.
type CleanupResult struct {
	DeletedTasks       int `json:"deletedTasks"`
	DeletedDays        int `json:"deletedDays"`
	DeletedWeeks       int `json:"deletedWeeks"`
	DeletedDefinitions int `json:"deletedDefinitions"`
}
