// Package timeparse turns operator-friendly end times ("8PM",
// "01/28/2012 8:00PM", "tomorrow at noon") into absolute instants.
package timeparse

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/rs/zerolog"
)

// ExampleFormats is shown to operators when their input cannot be parsed.
const ExampleFormats = `"8PM" or "01/28/2012 8:00PM"`

// Service defines the interface for free-text time parsing.
type Service interface {
	// Parse returns the instant described by text, relative to now.
	// ok is false when text does not describe a time.
	Parse(text string, now time.Time) (t time.Time, ok bool)
}

// Date and time layouts tried before natural-language parsing. Inputs are
// upper-cased first so "8pm" and "8PM" both match.
var dateTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02 3:04PM",
	"2006-01-02 3:04 PM",
	"01/02/2006 3:04PM",
	"01/02/2006 3:04 PM",
	"01/02/2006 3PM",
	"01/02/2006 3 PM",
	"01/02/2006 15:04",
	"1/2/2006 3:04PM",
	"1/2/2006 3:04 PM",
	"1/2/2006 15:04",
}

// Date-only layouts resolve to noon of that day.
var dateLayouts = []string{
	"01/02/2006",
	"1/2/2006",
	"2006-01-02",
}

// Words allowed around a natural-language match, e.g. "by 8pm".
var fillerWords = map[string]bool{
	"at": true, "on": true, "by": true, "around": true, "about": true, "the": true,
}

// Time-of-day layouts. The next occurrence after now is used, so "8AM"
// typed at 10AM means tomorrow morning.
var clockLayouts = []string{
	"3PM",
	"3 PM",
	"3:04PM",
	"3:04 PM",
	"15:04",
}

// Impl implements Service.
type Impl struct {
	location *time.Location
	natural  *when.Parser
	logger   zerolog.Logger
}

// New creates a parser that interprets zone-less input in loc.
func New(logger zerolog.Logger, loc *time.Location) *Impl {
	if loc == nil {
		loc = time.Local
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	return &Impl{
		location: loc,
		natural:  w,
		logger:   logger,
	}
}

// Parse implements Service.
func (s *Impl) Parse(text string, now time.Time) (time.Time, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, false
	}
	now = now.In(s.location)
	upper := strings.ToUpper(text)

	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, upper, s.location); err == nil {
			return t, true
		}
	}

	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, upper, s.location); err == nil {
			return t.Add(12 * time.Hour), true
		}
	}

	for _, layout := range clockLayouts {
		if t, err := time.ParseInLocation(layout, upper, s.location); err == nil {
			next := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, s.location)
			if next.Before(now) {
				next = next.AddDate(0, 0, 1)
			}
			return next, true
		}
	}

	r, err := s.natural.Parse(text, now)
	if err != nil {
		s.logger.Debug().Err(err).Str("input", text).Msg("natural language time parse failed")
		return time.Time{}, false
	}
	if r == nil {
		return time.Time{}, false
	}
	if rest := unmatched(text, r.Index, r.Text); rest != "" {
		s.logger.Debug().
			Str("input", text).
			Str("matched", r.Text).
			Str("unmatched", rest).
			Msg("natural language time only matched part of the input")
		return time.Time{}, false
	}

	s.logger.Debug().
		Str("input", text).
		Str("matched", r.Text).
		Time("parsed", r.Time).
		Msg("parsed natural language time")

	return r.Time, true
}

// unmatched returns the words of text outside the match, ignoring filler.
func unmatched(text string, index int, matched string) string {
	end := index + len(matched)
	if index < 0 || end > len(text) {
		return text
	}
	var rest []string
	for _, w := range strings.Fields(text[:index] + " " + text[end:]) {
		if !fillerWords[strings.ToLower(w)] {
			rest = append(rest, w)
		}
	}
	return strings.Join(rest, " ")
}

// Formatter renders instants in a fixed display zone and layout.
type Formatter struct {
	location *time.Location
	layout   string
}

// NewFormatter loads zone and returns a formatter for layout.
func NewFormatter(zone, layout string) (*Formatter, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("loading time zone %q: %w", zone, err)
	}
	return &Formatter{location: loc, layout: layout}, nil
}

// Format renders t in the formatter's zone.
func (f *Formatter) Format(t time.Time) string {
	return t.In(f.location).Format(f.layout)
}
