package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
)

// propRecurrenceID is not among the library's named property constants in
// every release.
const propRecurrenceID = ical.ComponentProperty("RECURRENCE-ID")

// ParsedEvent is a VEVENT reduced to what maps onto an event series. All
// times are converted into the import location.
type ParsedEvent struct {
	UID string

	Summary     string
	Description string

	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule string
	ExDates  []time.Time

	// RecurrenceID is set on override instances of a recurring event.
	RecurrenceID *time.Time
}

// ParseEvents parses an ICS payload into ParsedEvent values. Events missing
// a UID or DTSTART are reported in skipped and left out.
func ParseEvents(body []byte, loc *time.Location) (events []ParsedEvent, skipped []SkippedEvent, err error) {
	if len(body) == 0 {
		return nil, nil, errors.New("empty ICS body")
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("parse ics: %w", err)
	}

	for _, ve := range cal.Events() {
		ev, perr := parseVEvent(ve, loc)
		if perr != nil {
			skipped = append(skipped, SkippedEvent{UID: ev.UID, Reason: perr.Error()})
			continue
		}
		events = append(events, ev)
	}
	return events, skipped, nil
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (ParsedEvent, error) {
	var out ParsedEvent

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = unescapeText(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = unescapeText(p.Value)
	}

	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil {
		return out, errors.New("missing DTSTART")
	}
	start, allDay, err := propTime(startProp, loc)
	if err != nil {
		return out, fmt.Errorf("DTSTART: %w", err)
	}
	out.Start, out.AllDay = start, allDay

	switch endProp := ve.GetProperty(ical.ComponentPropertyDtEnd); {
	case endProp != nil:
		if out.End, _, err = propTime(endProp, loc); err != nil {
			return out, fmt.Errorf("DTEND: %w", err)
		}
	case allDay:
		out.End = out.Start.AddDate(0, 0, 1)
	default:
		out.End = out.Start
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = strings.TrimSpace(p.Value)
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			t, _, err := parseICSTime(part, paramValue(p, "TZID"), loc)
			if err != nil {
				return out, fmt.Errorf("EXDATE: %w", err)
			}
			out.ExDates = append(out.ExDates, t)
		}
	}

	if p := ve.GetProperty(propRecurrenceID); p != nil {
		t, _, err := propTime(p, loc)
		if err != nil {
			return out, fmt.Errorf("RECURRENCE-ID: %w", err)
		}
		out.RecurrenceID = &t
	}

	return out, nil
}

func paramValue(p *ical.IANAProperty, name string) string {
	if p.ICalParameters == nil {
		return ""
	}
	if vs, ok := p.ICalParameters[name]; ok && len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func propTime(p *ical.IANAProperty, loc *time.Location) (time.Time, bool, error) {
	t, allDay, err := parseICSTime(p.Value, paramValue(p, "TZID"), loc)
	if strings.EqualFold(paramValue(p, "VALUE"), "DATE") {
		allDay = true
	}
	return t, allDay, err
}

// parseICSTime parses DATE and DATE-TIME values. UTC and TZID times are
// converted into loc; floating times are read as wall clock in loc.
func parseICSTime(v, tzid string, loc *time.Location) (time.Time, bool, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false, errors.New("empty time value")
	}

	if strings.HasSuffix(v, "Z") {
		t, err := time.Parse("20060102T150405Z", v)
		return t.In(loc), false, err
	}

	if strings.Contains(v, "T") {
		src := loc
		if tzid != "" {
			if l, err := time.LoadLocation(tzid); err == nil {
				src = l
			}
		}
		t, err := time.ParseInLocation("20060102T150405", v, src)
		return t.In(loc), false, err
	}

	t, err := time.ParseInLocation("20060102", v, loc)
	return t, true, err
}

var textUnescaper = strings.NewReplacer(`\\`, `\`, `\,`, `,`, `\;`, `;`, `\n`, "\n", `\N`, "\n")

func unescapeText(s string) string { return textUnescaper.Replace(s) }
