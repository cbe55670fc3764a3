// Package scheduler runs jobs at fixed times of day.
package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

var timeRegex = regexp.MustCompile(`^([01][0-9]|2[0-3]):([0-5][0-9])$`)

type Scheduler struct {
	cron     *cron.Cron
	location *time.Location
	mu       sync.Mutex
	entries  []cron.EntryID
	started  bool
}

func New(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		location: loc,
	}
}

// Schedule replaces previous jobs with fn running daily at every HH:MM in
// times. A run that is still going when the next one fires is skipped.
func (s *Scheduler) Schedule(times []string, fn func()) error {
	exprs := make([]string, 0, len(times))
	for _, t := range times {
		hour, minute, err := ParseTime(t)
		if err != nil {
			return err
		}
		exprs = append(exprs, fmt.Sprintf("%d %d * * *", minute, hour))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.entries {
		s.cron.Remove(id)
	}
	s.entries = s.entries[:0]

	job := cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(fn))
	for i, expr := range exprs {
		id, err := s.cron.AddJob(expr, job)
		if err != nil {
			return fmt.Errorf("add cron job %q: %w", times[i], err)
		}
		s.entries = append(s.entries, id)
	}

	log.Info().Strs("times", times).Str("timezone", s.location.String()).Msg("Digest schedule set")
	return nil
}

// Next returns the next planned run, or the zero time without jobs.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	var next time.Time
	for _, id := range s.entries {
		e := s.cron.Entry(id)
		n := e.Schedule.Next(time.Now().In(s.location))
		if next.IsZero() || n.Before(next) {
			next = n
		}
	}
	return next
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.cron.Start()
		s.started = true
	}
}

// Stop halts the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	ctx := s.cron.Stop()
	s.mu.Unlock()
	<-ctx.Done()
}

// ParseTime splits "HH:MM" into hour and minute.
func ParseTime(timeStr string) (int, int, error) {
	matches := timeRegex.FindStringSubmatch(timeStr)
	if len(matches) != 3 {
		return 0, 0, fmt.Errorf("invalid time format: %q (expected HH:MM)", timeStr)
	}

	hour, _ := strconv.Atoi(matches[1])
	minute, _ := strconv.Atoi(matches[2])
	return hour, minute, nil
}
