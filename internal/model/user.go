package model

import (
	"encoding/json"
	"strings"
	"time"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleSupport  Role = "support"
	RoleEmployee Role = "employee"
)

func (r Role) IsValid() bool {
	return r == RoleAdmin || r == RoleSupport || r == RoleEmployee
}

// IsStaff reports whether the role works requests (support or admin).
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleSupport
}

type User struct {
	ID           string      `json:"id"`
	Username     string      `json:"username"`
	FullName     string      `json:"full_name"`
	Departments  Departments `json:"department"`
	Position     string      `json:"position"`
	Role         Role        `json:"role"`
	PasswordHash string      `json:"-"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Departments is the list of departments a user belongs to. Older records
// hold a single string, so both shapes decode.
type Departments []string

func (d *Departments) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*d = nil
		if one = strings.TrimSpace(one); one != "" {
			*d = Departments{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	out := make(Departments, 0, len(many))
	for _, m := range many {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	*d = out
	return nil
}

// PrimaryDepartment is the department stamped on requests the user files.
func (u *User) PrimaryDepartment() string {
	if len(u.Departments) == 0 {
		return ""
	}
	return u.Departments[0]
}

type Department struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Active      bool   `json:"is_active"`
}

// RequestOptions are the admin-editable choices shown on request forms.
type RequestOptions struct {
	Categories         []string       `json:"categories"`
	SLAHoursByPriority map[string]int `json:"sla_hours_by_priority"`
}

// DefaultSLAHours are the resolution targets per priority.
var DefaultSLAHours = map[Priority]int{
	PriorityHigh:   24,
	PriorityMedium: 72,
	PriorityLow:    120,
}

func DefaultRequestOptions() RequestOptions {
	sla := make(map[string]int, len(DefaultSLAHours))
	for p, h := range DefaultSLAHours {
		sla[string(p)] = h
	}
	return RequestOptions{Categories: []string{}, SLAHoursByPriority: sla}
}
