package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"meeting-scheduler/internal/interval"
	"meeting-scheduler/internal/reminders"
	"meeting-scheduler/internal/slots"

	"github.com/BurntSushi/toml"
)

// Policy is the scheduling policy. The zero file reproduces the built-in
// rules: Europe/Rome, 07:00-20:00, a three day near-term pass.
type Policy struct {
	Timezone         string        `toml:"timezone"`
	AllowedDurations []int         `toml:"allowed_durations"`
	BusinessHours    HoursPolicy   `toml:"business_hours"`
	Search           SearchPolicy  `toml:"search"`
	Reminders        ReminderRules `toml:"reminders"`
	Tokens           TokenPolicy   `toml:"tokens"`
}

type HoursPolicy struct {
	Start string `toml:"start"`
	End   string `toml:"end"`
}

type SearchPolicy struct {
	NearTerm    time.Duration `toml:"near_term"`
	DefaultSpan time.Duration `toml:"default_span"`
	Granularity time.Duration `toml:"granularity"`
	FetchLimit  int           `toml:"fetch_limit"`
}

type ReminderRules struct {
	Max      int           `toml:"max"`
	Interval time.Duration `toml:"interval"`
}

type TokenPolicy struct {
	Skew time.Duration `toml:"skew"`
}

func DefaultPolicy() Policy {
	return Policy{
		Timezone:         slots.DefaultLocation,
		AllowedDurations: []int{30, 45, 60},
		BusinessHours:    HoursPolicy{Start: "07:00", End: "20:00"},
		Search: SearchPolicy{
			NearTerm:    72 * time.Hour,
			DefaultSpan: 14 * 24 * time.Hour,
			Granularity: 5 * time.Minute,
			FetchLimit:  4,
		},
		Reminders: ReminderRules{Max: 3, Interval: 8 * time.Hour},
		Tokens:    TokenPolicy{Skew: 60 * time.Second},
	}
}

// LoadPolicy reads path over the defaults. An empty path yields the defaults.
// Unknown keys are logged and ignored.
func LoadPolicy(path string, log *slog.Logger) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}
	md, err := toml.DecodeFile(path, &p)
	if err != nil {
		return Policy{}, fmt.Errorf("policy %s: %w", path, err)
	}
	if log == nil {
		log = slog.Default()
	}
	for _, key := range md.Undecoded() {
		log.Warn("unknown policy key ignored", "file", path, "key", key.String())
	}
	if err := p.Validate(); err != nil {
		return Policy{}, fmt.Errorf("policy %s: %w", path, err)
	}
	return p, nil
}

func (p Policy) Validate() error {
	var errs []error
	if _, err := time.LoadLocation(p.Timezone); err != nil || p.Timezone == "" {
		errs = append(errs, fmt.Errorf("timezone %q is not a known zone", p.Timezone))
	}
	if len(p.AllowedDurations) == 0 {
		errs = append(errs, errors.New("allowed_durations must not be empty"))
	}
	for _, d := range p.AllowedDurations {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("allowed_durations must be positive, got %d", d))
		}
	}
	start, err1 := interval.ParseTimeOfDay(p.BusinessHours.Start)
	end, err2 := interval.ParseTimeOfDay(p.BusinessHours.End)
	switch {
	case err1 != nil:
		errs = append(errs, fmt.Errorf("business_hours.start: %w", err1))
	case err2 != nil:
		errs = append(errs, fmt.Errorf("business_hours.end: %w", err2))
	case !start.Before(end):
		errs = append(errs, errors.New("business_hours.start must be before business_hours.end"))
	}
	if p.Search.NearTerm < 0 || p.Search.DefaultSpan <= 0 || p.Search.Granularity < 0 {
		errs = append(errs, errors.New("search durations must be positive"))
	}
	if p.Reminders.Max < 0 || p.Reminders.Interval <= 0 {
		errs = append(errs, errors.New("reminders.max must be >= 0 and reminders.interval positive"))
	}
	if p.Tokens.Skew < 0 {
		errs = append(errs, errors.New("tokens.skew must not be negative"))
	}
	return joinErrors(errs)
}

func (p Policy) Location() (*time.Location, error) {
	return time.LoadLocation(p.Timezone)
}

// Slots converts the policy into slot selection rules.
func (p Policy) Slots() (slots.Policy, error) {
	loc, err := p.Location()
	if err != nil {
		return slots.Policy{}, err
	}
	start, err := interval.ParseTimeOfDay(p.BusinessHours.Start)
	if err != nil {
		return slots.Policy{}, err
	}
	end, err := interval.ParseTimeOfDay(p.BusinessHours.End)
	if err != nil {
		return slots.Policy{}, err
	}
	return slots.Policy{
		Location:    loc,
		DayStart:    start,
		DayEnd:      end,
		NearTerm:    p.Search.NearTerm,
		Granularity: p.Search.Granularity,
	}, nil
}

func (p Policy) ReminderPolicy() reminders.Policy {
	return reminders.Policy{MaxReminders: p.Reminders.Max, Interval: p.Reminders.Interval}
}
