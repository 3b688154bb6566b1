package schedule

import (
	"fmt"
	"time"
)

// BusyInterval is an occupied window sourced from the calendar provider.
// Read-only to this engine and never persisted locally.
type BusyInterval struct {
	Start      time.Time
	End        time.Time
	ExternalID string
	Label      string
}

// Slot is a bookable start time. Duration is the engine-wide constant.
type Slot struct {
	Start time.Time `json:"start"`
}

// DaySlots groups the available slots of a single business day.
type DaySlots struct {
	Date  string `json:"date"` // YYYY-MM-DD in the engine timezone
	Slots []Slot `json:"slots"`
}

// Decision is the result of validating a proposed slot.
type Decision struct {
	OK     bool
	Reason string
}

// Engine computes and validates bookable slots against business-hours rules
// and busy intervals.
type Engine struct {
	rules           Rules
	durationMinutes int
	bufferMinutes   int
	gridMinutes     int
}

// NewEngine creates an availability engine. Zero values fall back to the
// engine-wide constants.
func NewEngine(rules Rules, durationMinutes, bufferMinutes, gridMinutes int) *Engine {
	if durationMinutes <= 0 {
		durationMinutes = DefaultDurationMinutes
	}
	if bufferMinutes < 0 {
		bufferMinutes = BufferMinutes
	}
	if gridMinutes <= 0 {
		gridMinutes = GridMinutes
	}
	return &Engine{
		rules:           rules,
		durationMinutes: durationMinutes,
		bufferMinutes:   bufferMinutes,
		gridMinutes:     gridMinutes,
	}
}

// Rules returns the business-hours rules the engine validates against.
func (e *Engine) Rules() Rules {
	return e.rules
}

// DurationMinutes returns the fixed appointment duration.
func (e *Engine) DurationMinutes() int {
	return e.durationMinutes
}

// IsSlotAvailable validates a proposed start against the grid, business hours,
// and buffered busy intervals, in that order. The first failing rule wins.
func (e *Engine) IsSlotAvailable(proposedStart time.Time, busy []BusyInterval) Decision {
	startMs := ToEpochMs(proposedStart)
	if !IsOnGrid(startMs, e.gridMinutes) {
		return Decision{Reason: fmt.Sprintf("start time must be on a %d-minute grid", e.gridMinutes)}
	}
	if !e.rules.IsWithinBusinessHours(proposedStart) {
		return Decision{Reason: "outside business hours"}
	}

	endMs := ToEpochMs(AddMinutes(proposedStart, e.durationMinutes))
	for _, b := range busy {
		// Buffer is one-sided: cooldown after an existing session.
		blockedStart := ToEpochMs(b.Start)
		blockedEnd := ToEpochMs(AddMinutes(b.End, e.bufferMinutes))
		if IntervalsOverlap(startMs, endMs, blockedStart, blockedEnd) {
			return Decision{Reason: fmt.Sprintf("conflicts with an existing session starting %s",
				b.Start.In(e.rules.Location).Format("2006-01-02 15:04"))}
		}
	}
	return Decision{OK: true}
}

// GenerateAvailableSlots walks [windowStart, windowEnd] at grid steps and
// returns every start for which IsSlotAvailable is ok. The result is ordered
// and deterministic for identical inputs.
func (e *Engine) GenerateAvailableSlots(windowStart, windowEnd time.Time, busy []BusyInterval) []Slot {
	var slots []Slot
	durMs := int64(e.durationMinutes) * 60_000
	endMs := ToEpochMs(windowEnd)

	for ms := RoundUpToGrid(ToEpochMs(windowStart), e.gridMinutes); ms+durMs <= endMs; ms += int64(e.gridMinutes) * 60_000 {
		start := time.UnixMilli(ms).In(e.rules.Location)
		if e.IsSlotAvailable(start, busy).OK {
			slots = append(slots, Slot{Start: start})
		}
	}
	return slots
}

// GenerateSlotsByDay produces per-day slot lists for the next `days` business
// days starting at startFrom. Non-business weekdays are skipped entirely and
// days with no open slots are omitted.
func (e *Engine) GenerateSlotsByDay(days int, startFrom time.Time, busy []BusyInterval) []DaySlots {
	var out []DaySlots
	local := startFrom.In(e.rules.Location)

	for i := 0; i < days; i++ {
		day := local.AddDate(0, 0, i)
		if !e.rules.Weekdays[day.Weekday()] {
			continue
		}

		dayStart := time.Date(day.Year(), day.Month(), day.Day(), e.rules.StartHour, 0, 0, 0, e.rules.Location)
		dayEnd := time.Date(day.Year(), day.Month(), day.Day(), e.rules.EndHour, 0, 0, 0, e.rules.Location)
		windowStart := dayStart
		if i == 0 && local.After(dayStart) {
			windowStart = local
		}

		slots := e.GenerateAvailableSlots(windowStart, dayEnd, busy)
		if len(slots) == 0 {
			continue
		}
		out = append(out, DaySlots{
			Date:  day.Format("2006-01-02"),
			Slots: slots,
		})
	}
	return out
}
