package model

// BreakTime is a pause inside a working window, "HH:MM" bounds, half-open.
type BreakTime struct {
	Start string `json:"start" yaml:"start"` // "12:00"
	End   string `json:"end" yaml:"end"`     // "13:00"
}

// AvailabilityRule is one weekly recurrence of a provider's working hours.
type AvailabilityRule struct {
	DayOfWeek  int         `json:"day_of_week" yaml:"day_of_week"` // 0-6 (Sunday-Saturday)
	StartTime  string      `json:"start_time" yaml:"start_time"`   // "09:00"
	EndTime    string      `json:"end_time" yaml:"end_time"`       // "17:00"
	BreakTimes []BreakTime `json:"break_times,omitempty" yaml:"break_times,omitempty"`
}

// Service is a bookable offering.
type Service struct {
	ID          string  `json:"id" yaml:"id"`
	Name        string  `json:"name" yaml:"name"`
	Duration    int     `json:"duration" yaml:"duration"` // minutes
	Price       float64 `json:"price" yaml:"price"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
}

// Provider owns services and a weekly schedule.
type Provider struct {
	ID           string             `json:"id"`
	APIKey       string             `json:"-"`
	Name         string             `json:"name"`
	Business     string             `json:"business"`
	Avatar       string             `json:"avatar,omitempty"`
	Timezone     string             `json:"timezone"` // display only
	Services     []Service          `json:"services"`
	Availability []AvailabilityRule `json:"availability"`
	Version      int64              `json:"version"`
}

// PrimaryService returns the service that drives slot duration and price.
func (p *Provider) PrimaryService() *Service {
	if p == nil || len(p.Services) == 0 {
		return nil
	}
	return &p.Services[0]
}

// RuleFor returns the first rule matching the weekday, or nil.
func (p *Provider) RuleFor(dayOfWeek int) *AvailabilityRule {
	if p == nil {
		return nil
	}
	for i := range p.Availability {
		if p.Availability[i].DayOfWeek == dayOfWeek {
			return &p.Availability[i]
		}
	}
	return nil
}
