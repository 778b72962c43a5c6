package availability

import (
	"fmt"
	"sort"
	"strings"

	"guardslot/internal/model"
)

// IssueCode classifies a schedule validation problem.
type IssueCode string

const (
	IssueInvalidDay     IssueCode = "invalid_day"
	IssueInvalidTime    IssueCode = "invalid_time"
	IssueEmptyWindow    IssueCode = "empty_window"
	IssueBreakOutside   IssueCode = "break_outside_window"
	IssueBreakEmpty     IssueCode = "empty_break"
	IssueBreakOverlap   IssueCode = "break_overlap"
	IssueDuplicateDay   IssueCode = "duplicate_day"
	IssueInvalidService IssueCode = "invalid_service"
	IssueDuplicateSvcID IssueCode = "duplicate_service_id"
)

// Issue is a single validation finding.
type Issue struct {
	Field   string    `json:"field"`
	Code    IssueCode `json:"code"`
	Message string    `json:"message"`
}

// ValidationResult collects issues found in an authored schedule.
// The resolver never consults it; it is produced where schedules are written.
type ValidationResult struct {
	Issues []Issue `json:"issues"`
}

// OK reports whether no issues were found.
func (r ValidationResult) OK() bool {
	return len(r.Issues) == 0
}

// Err folds the issues into a single error, or nil.
func (r ValidationResult) Err() error {
	if r.OK() {
		return nil
	}
	msgs := make([]string, len(r.Issues))
	for i, is := range r.Issues {
		msgs[i] = fmt.Sprintf("%s: %s", is.Field, is.Message)
	}
	return fmt.Errorf("invalid schedule: %s", strings.Join(msgs, "; "))
}

func (r *ValidationResult) add(field string, code IssueCode, format string, args ...any) {
	r.Issues = append(r.Issues, Issue{Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
}

func (r *ValidationResult) merge(other ValidationResult) {
	r.Issues = append(r.Issues, other.Issues...)
}

// ValidateRule checks one weekly rule. prefix names the rule in issue fields.
func ValidateRule(rule model.AvailabilityRule, prefix string) ValidationResult {
	var res ValidationResult

	if rule.DayOfWeek < 0 || rule.DayOfWeek > 6 {
		res.add(prefix+".day_of_week", IssueInvalidDay, "must be 0-6 (0=Sunday), got %d", rule.DayOfWeek)
	}

	start, startErr := minutesOf(rule.StartTime)
	if startErr != nil {
		res.add(prefix+".start_time", IssueInvalidTime, "invalid format %q, expected HH:MM", rule.StartTime)
	}
	end, endErr := minutesOf(rule.EndTime)
	if endErr != nil {
		res.add(prefix+".end_time", IssueInvalidTime, "invalid format %q, expected HH:MM", rule.EndTime)
	}
	windowOK := startErr == nil && endErr == nil
	if windowOK && end <= start {
		res.add(prefix, IssueEmptyWindow, "end_time must be after start_time")
		windowOK = false
	}

	type span struct{ from, to, idx int }
	spans := make([]span, 0, len(rule.BreakTimes))
	for i, b := range rule.BreakTimes {
		field := fmt.Sprintf("%s.break_times[%d]", prefix, i)
		bs, err1 := minutesOf(b.Start)
		be, err2 := minutesOf(b.End)
		if err1 != nil || err2 != nil {
			res.add(field, IssueInvalidTime, "invalid break %q-%q, expected HH:MM", b.Start, b.End)
			continue
		}
		if be <= bs {
			res.add(field, IssueBreakEmpty, "end must be after start")
			continue
		}
		if windowOK && (bs < start || be > end) {
			res.add(field, IssueBreakOutside, "break must be within working hours")
		}
		spans = append(spans, span{from: bs, to: be, idx: i})
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].from < spans[j].from })
	for i := 1; i < len(spans); i++ {
		if spans[i].from < spans[i-1].to {
			res.add(fmt.Sprintf("%s.break_times[%d]", prefix, spans[i].idx), IssueBreakOverlap,
				"overlaps break_times[%d]", spans[i-1].idx)
		}
	}

	return res
}

// ValidateProvider checks services and all weekly rules of a provider.
func ValidateProvider(p *model.Provider) ValidationResult {
	var res ValidationResult
	if p == nil {
		return res
	}

	ids := make(map[string]bool)
	for i, svc := range p.Services {
		field := fmt.Sprintf("services[%d]", i)
		if svc.ID == "" || svc.Name == "" {
			res.add(field, IssueInvalidService, "id and name are required")
		}
		if ids[svc.ID] {
			res.add(field, IssueDuplicateSvcID, "duplicate id %q", svc.ID)
		}
		ids[svc.ID] = true
		if svc.Duration <= 0 {
			res.add(field+".duration", IssueInvalidService, "must be positive")
		}
		if svc.Price < 0 {
			res.add(field+".price", IssueInvalidService, "cannot be negative")
		}
	}

	seen := make(map[int]int)
	for i, rule := range p.Availability {
		prefix := fmt.Sprintf("availability[%d]", i)
		res.merge(ValidateRule(rule, prefix))
		if first, dup := seen[rule.DayOfWeek]; dup {
			res.add(prefix+".day_of_week", IssueDuplicateDay, "day %d already defined by availability[%d]", rule.DayOfWeek, first)
			continue
		}
		seen[rule.DayOfWeek] = i
	}

	return res
}

func minutesOf(s string) (int, error) {
	h, m, err := ParseClock(s)
	if err != nil {
		return 0, err
	}
	return h*60 + m, nil
}
