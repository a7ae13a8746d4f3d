package asset

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/roach88/assetsched/internal/cron"
)

// PartitionsDef describes the valid partition keys of an asset. A nil
// PartitionsDef means the asset is unpartitioned and has the single key "".
type PartitionsDef interface {
	// ID identifies the definition. Assets with equal IDs share partition keys
	// and may be requested together.
	ID() string
	// Keys returns the keys valid at now, in ascending order.
	Keys(now time.Time) ([]string, error)
}

// PartitionKeys returns the valid keys of def at now, treating nil as unpartitioned.
func PartitionKeys(def PartitionsDef, now time.Time) ([]string, error) {
	if def == nil {
		return []string{""}, nil
	}
	return def.Keys(now)
}

// DefID returns def.ID(), or "" for unpartitioned assets.
func DefID(def PartitionsDef) string {
	if def == nil {
		return ""
	}
	return def.ID()
}

// StaticPartitions is a fixed list of keys.
type StaticPartitions struct {
	keys []string
}

// NewStaticPartitions validates and sorts keys. Keys must be non-empty and unique.
func NewStaticPartitions(keys []string) (*StaticPartitions, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("static partitions: no keys")
	}
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	for i, k := range sorted {
		if k == "" {
			return nil, fmt.Errorf("static partitions: empty key")
		}
		if i > 0 && sorted[i-1] == k {
			return nil, fmt.Errorf("static partitions: duplicate key %q", k)
		}
	}
	return &StaticPartitions{keys: sorted}, nil
}

func (p *StaticPartitions) ID() string {
	return "static:" + strings.Join(p.keys, ",")
}

func (p *StaticPartitions) Keys(time.Time) ([]string, error) {
	return slices.Clone(p.keys), nil
}

// TimeWindowPartitions has one key per cron window starting at Start. A
// window is valid once its end is at or before now. The key is the window
// start formatted with Format in the schedule's location.
type TimeWindowPartitions struct {
	Cron     string
	Timezone string
	Start    time.Time
	Format   string

	schedule cron.Schedule
}

// DefaultTimeFormat is used when a time window has no Format.
const DefaultTimeFormat = "2006-01-02"

// maxWindows bounds the number of keys a time window definition may produce.
const maxWindows = 50_000

func NewTimeWindowPartitions(cronExpr, timezone string, start time.Time, format string) (*TimeWindowPartitions, error) {
	sched, err := cron.Default.Parse(cronExpr, timezone)
	if err != nil {
		return nil, fmt.Errorf("time window partitions: %w", err)
	}
	if start.IsZero() {
		return nil, fmt.Errorf("time window partitions: start is required")
	}
	if format == "" {
		format = DefaultTimeFormat
	}
	return &TimeWindowPartitions{
		Cron:     cronExpr,
		Timezone: timezone,
		Start:    start,
		Format:   format,
		schedule: sched,
	}, nil
}

func (p *TimeWindowPartitions) ID() string {
	return fmt.Sprintf("time:%s|%s|%s|%s", p.Cron, p.Timezone, p.Start.UTC().Format(time.RFC3339), p.Format)
}

func (p *TimeWindowPartitions) Keys(now time.Time) ([]string, error) {
	starts := cron.Ticks(p.schedule, p.Start, now, maxWindows+1)
	if len(starts) > maxWindows {
		return nil, fmt.Errorf("time window partitions: more than %d windows before %s", maxWindows, now.Format(time.RFC3339))
	}
	keys := make([]string, 0, len(starts))
	loc := p.schedule.Location()
	for _, s := range starts {
		end := p.schedule.Next(s)
		if end.IsZero() || end.After(now) {
			break
		}
		keys = append(keys, s.In(loc).Format(p.Format))
	}
	return keys, nil
}
