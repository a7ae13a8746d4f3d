// Package cron parses five-field cron expressions with a timezone and answers
// tick questions for the evaluator and for time-window partitions.
package cron

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/robfig/cron/v3"
)

// DefaultCacheSize bounds the number of parsed schedules kept by a Parser.
const DefaultCacheSize = 256

// maxTicks caps tick enumeration so a sub-minute gap over years cannot stall a tick.
const maxTicks = 100_000

type Parser struct {
	parser cron.Parser
	cache  *lru.Cache[string, Schedule]
}

func NewParser() *Parser {
	cache, err := lru.New[string, Schedule](DefaultCacheSize)
	if err != nil {
		// lru.New only fails for a non-positive size.
		panic(err)
	}
	return &Parser{
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		cache:  cache,
	}
}

// Default is shared by callers that do not carry their own Parser.
var Default = NewParser()

// Parse returns the schedule for expression evaluated in timezone.
// An empty timezone means UTC. Results are cached by (expression, timezone).
func (p *Parser) Parse(expression string, timezone string) (Schedule, error) {
	if timezone == "" {
		timezone = "UTC"
	}
	cacheKey := timezone + "\x00" + expression
	if sched, ok := p.cache.Get(cacheKey); ok {
		return sched, nil
	}

	sched, err := p.parser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("parse cron: %w", err)
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}

	s := &schedule{sched: sched, loc: loc}
	p.cache.Add(cacheKey, s)
	return s, nil
}

type Schedule interface {
	Next(after time.Time) time.Time
	Location() *time.Location
}

type schedule struct {
	sched cron.Schedule
	loc   *time.Location
}

func (s *schedule) Next(after time.Time) time.Time {
	return s.sched.Next(after.In(s.loc))
}

func (s *schedule) Location() *time.Location {
	return s.loc
}

// TickPassed reports whether sched fires in the half-open interval (after, until].
func TickPassed(sched Schedule, after, until time.Time) bool {
	if !until.After(after) {
		return false
	}
	next := sched.Next(after)
	return !next.IsZero() && !next.After(until)
}

// LatestTick returns the last tick in (after, until], or false when none fell.
func LatestTick(sched Schedule, after, until time.Time) (time.Time, bool) {
	var (
		last  time.Time
		found bool
	)
	t := after
	for i := 0; i < maxTicks; i++ {
		next := sched.Next(t)
		if next.IsZero() || next.After(until) {
			break
		}
		last, found = next, true
		t = next
	}
	return last, found
}

// Ticks returns the ticks in [from, until), at most limit of them.
func Ticks(sched Schedule, from, until time.Time, limit int) []time.Time {
	if limit <= 0 || limit > maxTicks {
		limit = maxTicks
	}
	var out []time.Time
	t := sched.Next(from.Add(-time.Nanosecond))
	for !t.IsZero() && t.Before(until) && len(out) < limit {
		out = append(out, t)
		t = sched.Next(t)
	}
	return out
}
