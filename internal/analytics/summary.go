package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/baiirun/mesa/internal/model"
)

// Snapshot is the data a summary is computed from. Requests must carry their
// state history for the extended figures.
type Snapshot struct {
	Requests []model.Request
	Names    map[string]string // user id → full name
	SLAHours map[model.Priority]int
	Now      time.Time
}

type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type Totals struct {
	TotalRequests   int `json:"total_requests"`
	AssignedTotal   int `json:"assigned_total"`
	UnassignedTotal int `json:"unassigned_total"`
	NewLast24h      int `json:"new_last_24h"`
}

type TechProductivity struct {
	TechID         string `json:"tech_id"`
	TechName       string `json:"tech_name"`
	AssignedTotal  int    `json:"assigned_total"`
	PendingNow     int    `json:"pending_now"`
	AttendedPeriod int    `json:"attended_period"`
}

type Summary struct {
	Period        Period             `json:"period"`
	Range         Range              `json:"range"`
	New           int                `json:"new"`
	Finished      int                `json:"finished"`
	PendingNow    int                `json:"pending_now"`
	InReview      int                `json:"in_review"`
	AvgCycleHours float64            `json:"avg_cycle_hours"`
	Totals        Totals             `json:"totals"`
	Productivity  []TechProductivity `json:"productivity_by_tech"`
	*Extended
}

// Summarize computes the KPIs for the period containing snap.Now.
func Summarize(p Period, snap Snapshot, extended bool) Summary {
	start, end := Bounds(p, snap.Now)
	s := Summary{Period: p, Range: Range{Start: start, End: end}}

	var cycle float64
	var cycles int
	dayAgo := snap.Now.Add(-24 * time.Hour)
	for i := range snap.Requests {
		r := &snap.Requests[i]
		if within(r.CreatedAt, start, end) {
			s.New++
		}
		if finishedWithin(r, start, end) {
			s.Finished++
			cycle += r.CompletionDate.Sub(r.CreatedAt).Hours()
			cycles++
		}
		if r.Status.IsOpen() {
			s.PendingNow++
		}
		if r.Status == model.StatusInReview {
			s.InReview++
		}

		s.Totals.TotalRequests++
		if r.AssignedTo != nil {
			s.Totals.AssignedTotal++
		} else {
			s.Totals.UnassignedTotal++
		}
		if !r.CreatedAt.Before(dayAgo) {
			s.Totals.NewLast24h++
		}
	}
	if cycles > 0 {
		s.AvgCycleHours = round2(cycle / float64(cycles))
	}
	s.Productivity = Productivity(snap.Requests, snap.Names, start, end)

	if extended {
		s.Extended = extend(p, snap, start, end)
	}
	return s
}

// Productivity groups requests by assignee: everything assigned, what is
// still open, and what was finished inside [start, end).
func Productivity(reqs []model.Request, names map[string]string, start, end time.Time) []TechProductivity {
	byTech := map[string]*TechProductivity{}
	for i := range reqs {
		r := &reqs[i]
		if r.AssignedTo == nil {
			continue
		}
		tp, ok := byTech[*r.AssignedTo]
		if !ok {
			tp = &TechProductivity{TechID: *r.AssignedTo, TechName: techName(*r.AssignedTo, r.AssignedToName, names)}
			byTech[*r.AssignedTo] = tp
		}
		tp.AssignedTotal++
		if r.Status.IsOpen() {
			tp.PendingNow++
		}
		if finishedWithin(r, start, end) {
			tp.AttendedPeriod++
		}
	}

	out := make([]TechProductivity, 0, len(byTech))
	for _, tp := range byTech {
		out = append(out, *tp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AttendedPeriod != out[j].AttendedPeriod {
			return out[i].AttendedPeriod > out[j].AttendedPeriod
		}
		if out[i].TechName != out[j].TechName {
			return out[i].TechName < out[j].TechName
		}
		return out[i].TechID < out[j].TechID
	})
	return out
}

func finishedWithin(r *model.Request, start, end time.Time) bool {
	return r.Status == model.StatusFinished && r.CompletionDate != nil && within(*r.CompletionDate, start, end)
}

func within(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}

func techName(id string, stored *string, names map[string]string) string {
	if n, ok := names[id]; ok && n != "" {
		return n
	}
	if stored != nil && *stored != "" {
		return *stored
	}
	return id
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
