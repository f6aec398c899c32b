package analytics

import (
	"sort"
	"strconv"
	"time"

	"github.com/baiirun/mesa/internal/model"
)

type TechReturns struct {
	TechID            string `json:"tech_id"`
	TechName          string `json:"tech_name"`
	ReturnsFromReview int    `json:"returns_from_review"`
}

type TechFeedback struct {
	TechID   string `json:"tech_id"`
	TechName string `json:"tech_name"`
	Up       int    `json:"up"`
	Down     int    `json:"down"`
}

type DepartmentFeedback struct {
	Department string `json:"department"`
	Up         int    `json:"up"`
	Down       int    `json:"down"`
}

type FeedbackBreakdown struct {
	ByTech       []TechFeedback       `json:"by_tech"`
	ByDepartment []DepartmentFeedback `json:"by_department"`
}

type PrioritySLA struct {
	Priority model.Priority `json:"priority"`
	InSLA    int            `json:"in_sla"`
	Overdue  int            `json:"overdue"`
}

type Trend struct {
	Labels   []string `json:"labels"`
	Received []int    `json:"received"`
	Resolved []int    `json:"resolved"`
}

type Count struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type Distribution struct {
	ByType       []Count `json:"by_type"`
	ByLevel      []Count `json:"by_level"`
	ByDepartment []Count `json:"by_department"`
}

type SLAConfig struct {
	SLAHoursByPriority map[model.Priority]int `json:"sla_hours_by_priority"`
}

// Extended holds the dashboard figures beyond the headline counts.
type Extended struct {
	AvgTimeByStatus   map[model.Status]float64 `json:"avg_time_by_status"`
	ReturnsFromReview []TechReturns            `json:"returns_from_review_by_tech"`
	Feedback          FeedbackBreakdown        `json:"feedback"`
	SLAByPriority     []PrioritySLA            `json:"sla_by_priority"`
	TrendReceived     Trend                    `json:"trend_received_vs_resolved"`
	Distribution      Distribution             `json:"distribution"`
	Config            SLAConfig                `json:"config"`
}

const unknown = "N/D"

func extend(p Period, snap Snapshot, start, end time.Time) *Extended {
	sla := snap.SLAHours
	if len(sla) == 0 {
		sla = model.DefaultSLAHours
	}
	return &Extended{
		AvgTimeByStatus:   avgTimeByStatus(snap.Requests, start, end, snap.Now),
		ReturnsFromReview: returnsFromReview(snap.Requests, snap.Names, start, end),
		Feedback:          feedbackBreakdown(snap.Requests, snap.Names),
		SLAByPriority:     slaByPriority(snap.Requests, sla, snap.Now),
		TrendReceived:     trend(p, snap.Requests, start, end),
		Distribution:      distribution(snap.Requests),
		Config:            SLAConfig{SLAHoursByPriority: sla},
	}
}

// avgTimeByStatus averages, in hours, how long requests sat in each open
// status. Each stay runs from its event to the next one (or completion, or
// now) and is clipped to [start, end).
func avgTimeByStatus(reqs []model.Request, start, end, now time.Time) map[model.Status]float64 {
	sums := map[model.Status]float64{}
	counts := map[model.Status]int{}
	for i := range reqs {
		r := &reqs[i]
		hist := append([]model.StateEvent(nil), r.StateHistory...)
		sort.SliceStable(hist, func(a, b int) bool { return hist[a].At.Before(hist[b].At) })
		for k, ev := range hist {
			if !ev.To.IsOpen() {
				continue
			}
			t0 := ev.At
			var t1 time.Time
			switch {
			case k+1 < len(hist):
				t1 = hist[k+1].At
			case r.CompletionDate != nil:
				t1 = *r.CompletionDate
			default:
				t1 = now
			}
			if t0.Before(start) {
				t0 = start
			}
			if t1.After(end) {
				t1 = end
			}
			if !t1.After(t0) {
				continue
			}
			sums[ev.To] += t1.Sub(t0).Hours()
			counts[ev.To]++
		}
	}

	out := make(map[model.Status]float64, len(model.OpenStatuses))
	for _, st := range model.OpenStatuses {
		if counts[st] > 0 {
			out[st] = round2(sums[st] / float64(counts[st]))
		} else {
			out[st] = 0
		}
	}
	return out
}

// returnsFromReview counts En revisión → En progreso moves inside the range,
// credited to whoever returned the request.
func returnsFromReview(reqs []model.Request, names map[string]string, start, end time.Time) []TechReturns {
	byTech := map[string]*TechReturns{}
	for i := range reqs {
		for _, ev := range reqs[i].StateHistory {
			if ev.From == nil || *ev.From != model.StatusInReview || ev.To != model.StatusInProgress {
				continue
			}
			if !within(ev.At, start, end) {
				continue
			}
			tr, ok := byTech[ev.ByUserID]
			if !ok {
				name := ev.ByUserName
				tr = &TechReturns{TechID: ev.ByUserID, TechName: techName(ev.ByUserID, &name, names)}
				byTech[ev.ByUserID] = tr
			}
			tr.ReturnsFromReview++
		}
	}

	out := make([]TechReturns, 0, len(byTech))
	for _, tr := range byTech {
		out = append(out, *tr)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ReturnsFromReview != out[j].ReturnsFromReview {
			return out[i].ReturnsFromReview > out[j].ReturnsFromReview
		}
		return out[i].TechName < out[j].TechName
	})
	return out
}

func feedbackBreakdown(reqs []model.Request, names map[string]string) FeedbackBreakdown {
	byTech := map[string]*TechFeedback{}
	byDept := map[string]*DepartmentFeedback{}
	for i := range reqs {
		r := &reqs[i]
		if r.Feedback == nil {
			continue
		}
		up := r.Feedback.Rating == model.RatingUp

		if r.AssignedTo != nil {
			tf, ok := byTech[*r.AssignedTo]
			if !ok {
				tf = &TechFeedback{TechID: *r.AssignedTo, TechName: techName(*r.AssignedTo, r.AssignedToName, names)}
				byTech[*r.AssignedTo] = tf
			}
			if up {
				tf.Up++
			} else {
				tf.Down++
			}
		}

		dept := r.Department
		if dept == "" {
			dept = unknown
		}
		df, ok := byDept[dept]
		if !ok {
			df = &DepartmentFeedback{Department: dept}
			byDept[dept] = df
		}
		if up {
			df.Up++
		} else {
			df.Down++
		}
	}

	out := FeedbackBreakdown{ByTech: []TechFeedback{}, ByDepartment: []DepartmentFeedback{}}
	for _, tf := range byTech {
		out.ByTech = append(out.ByTech, *tf)
	}
	for _, df := range byDept {
		out.ByDepartment = append(out.ByDepartment, *df)
	}
	sort.Slice(out.ByTech, func(i, j int) bool {
		a, b := out.ByTech[i], out.ByTech[j]
		return netLess(a.Up, a.Down, a.TechName, b.Up, b.Down, b.TechName)
	})
	sort.Slice(out.ByDepartment, func(i, j int) bool {
		a, b := out.ByDepartment[i], out.ByDepartment[j]
		return netLess(a.Up, a.Down, a.Department, b.Up, b.Down, b.Department)
	})
	return out
}

// netLess orders by net score, then by up votes, both descending.
func netLess(upA, downA int, nameA string, upB, downB int, nameB string) bool {
	if upA-downA != upB-downB {
		return upA-downA > upB-downB
	}
	if upA != upB {
		return upA > upB
	}
	return nameA < nameB
}

// slaByPriority counts a request as overdue when it was (or still is) open
// past created_at plus the priority's target.
func slaByPriority(reqs []model.Request, hours map[model.Priority]int, now time.Time) []PrioritySLA {
	out := make([]PrioritySLA, 0, len(model.Priorities))
	for _, p := range model.Priorities {
		h, ok := hours[p]
		if !ok {
			continue
		}
		row := PrioritySLA{Priority: p}
		for i := range reqs {
			r := &reqs[i]
			if r.Priority != p {
				continue
			}
			deadline := r.CreatedAt.Add(time.Duration(h) * time.Hour)
			closed := now
			if r.CompletionDate != nil {
				closed = *r.CompletionDate
			}
			if closed.After(deadline) {
				row.Overdue++
			} else {
				row.InSLA++
			}
		}
		out = append(out, row)
	}
	return out
}

// trend buckets received (created) and resolved (finished) requests per hour
// for a daily period and per day otherwise.
func trend(p Period, reqs []model.Request, start, end time.Time) Trend {
	starts := buckets(p, start, end)
	t := Trend{
		Labels:   make([]string, len(starts)),
		Received: make([]int, len(starts)),
		Resolved: make([]int, len(starts)),
	}
	for i, b := range starts {
		t.Labels[i] = label(b, p)
	}
	if len(starts) == 0 {
		return t
	}

	step := 24 * time.Hour
	if p == Daily {
		step = time.Hour
	}
	index := func(at time.Time) int {
		if !within(at, start, end) {
			return -1
		}
		return int(at.Sub(start) / step)
	}
	for i := range reqs {
		r := &reqs[i]
		if k := index(r.CreatedAt); k >= 0 && k < len(starts) {
			t.Received[k]++
		}
		if r.Status == model.StatusFinished && r.CompletionDate != nil {
			if k := index(*r.CompletionDate); k >= 0 && k < len(starts) {
				t.Resolved[k]++
			}
		}
	}
	return t
}

func distribution(reqs []model.Request) Distribution {
	byType := map[string]int{}
	byLevel := map[string]int{}
	byDept := map[string]int{}
	for i := range reqs {
		r := &reqs[i]
		byType[orUnknown(string(r.Type))]++
		if r.Level != nil {
			byLevel[strconv.Itoa(*r.Level)]++
		} else {
			byLevel[unknown]++
		}
		byDept[orUnknown(r.Department)]++
	}
	return Distribution{
		ByType:       counts(byType),
		ByLevel:      counts(byLevel),
		ByDepartment: counts(byDept),
	}
}

func counts(m map[string]int) []Count {
	out := make([]Count, 0, len(m))
	for name, n := range m {
		out = append(out, Count{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}
