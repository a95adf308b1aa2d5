// Copyright 2025 Gatehouse Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cron

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/go-gatehouse/gatehouse/pkg/id"
	"github.com/go-gatehouse/gatehouse/pkg/log"
)

// Schedule describes a job's duty cycle.
type Schedule interface {
	// Next returns the next activation time, later than the given time.
	Next(t time.Time) time.Time
}

// Job is an interface for submitted cron jobs.
type Job interface {
	Run()
}

// FuncJob adapts a func() into a Job.
type FuncJob func()

func (f FuncJob) Run() { f() }

// Entry consists of a schedule and the job to execute on that schedule.
type Entry struct {
	// Name identifies the entry for removal and for the distributed
	// tick lock.
	Name string

	// Schedule on which this job should be run.
	Schedule Schedule

	// Next time the job will run, zero if Cron has not been started or
	// this entry's schedule is unsatisfiable.
	Next time.Time

	// Prev is the last time this job was run, zero if never.
	Prev time.Time

	// Job to run.
	Job Job

	// once marks an entry that is dropped after its first run.
	once bool
}

// byTime sorts entries by next activation time, zero times at the end.
type byTime []*Entry

func (s byTime) Len() int      { return len(s) }
func (s byTime) Swap(i, j int) { s[i], s[j] = s[j], s[i] }
func (s byTime) Less(i, j int) bool {
	if s[i].Next.IsZero() {
		return false
	}
	if s[j].Next.IsZero() {
		return true
	}
	return s[i].Next.Before(s[j].Next)
}

// Cron keeps track of any number of entries, invoking the associated
// func as specified by each entry's schedule. It may be started and
// stopped, and entries may be inspected, added, and removed while
// running.
//
// When the run loop starts, every registered entry fires once before
// settling into its schedule. Recurring maintenance jobs thereby get a
// catch-up pass at process start.
type Cron struct {
	entries     []*Entry
	stop        chan struct{}
	add         chan *Entry
	remove      chan string
	snapshot    chan []*Entry
	running     bool
	location    *time.Location
	redisClient redis.UniversalClient

	// ErrorLog is used for job panics and scheduler errors. Nil
	// silences them.
	ErrorLog *log.Logger
}

// OpOption configures a Cron on construction.
type OpOption func(*Cron)

// WithRedisClient enables the distributed tick lock. When set, an entry
// fires on at most one process per scheduled tick across all processes
// sharing the Redis instance.
func WithRedisClient(client redis.UniversalClient) OpOption {
	return func(c *Cron) {
		c.redisClient = client
	}
}

// New returns a new Cron job runner in the local time zone.
func New(opts ...OpOption) *Cron {
	return NewWithLocation(time.Now().Location(), opts...)
}

// NewWithLocation returns a new Cron job runner in the given time zone.
func NewWithLocation(location *time.Location, opts ...OpOption) *Cron {
	c := &Cron{
		entries:  nil,
		add:      make(chan *Entry),
		remove:   make(chan string),
		stop:     make(chan struct{}),
		snapshot: make(chan []*Entry),
		running:  false,
		location: location,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddFunc adds a func to be run on the given schedule.
func (c *Cron) AddFunc(spec string, cmd func(), names ...string) error {
	return c.AddJob(spec, FuncJob(cmd), names...)
}

// AddOnceFunc adds a func that runs a single time, at the first
// activation of the given schedule, and is then removed.
func (c *Cron) AddOnceFunc(spec string, cmd func(), names ...string) error {
	schedule, err := Parse(spec)
	if err != nil {
		return err
	}
	c.schedule(schedule, FuncJob(cmd), true, names...)
	return nil
}

// AddJob adds a Job to be run on the given schedule.
func (c *Cron) AddJob(spec string, cmd Job, names ...string) error {
	schedule, err := Parse(spec)
	if err != nil {
		return err
	}
	c.schedule(schedule, cmd, false, names...)
	return nil
}

// Schedule adds a Job to be run on the given schedule.
func (c *Cron) Schedule(schedule Schedule, cmd Job, names ...string) {
	c.schedule(schedule, cmd, false, names...)
}

func (c *Cron) schedule(schedule Schedule, cmd Job, once bool, names ...string) {
	name := ""
	if len(names) > 0 {
		name = names[0]
	}
	if name == "" {
		name = id.GetXid()
	}

	entry := &Entry{
		Name:     name,
		Schedule: schedule,
		Job:      cmd,
		once:     once,
	}

	if !c.running {
		if c.pos(name) != -1 {
			c.logf("cron: duplicate entry name %q", name)
		}
		c.entries = append(c.entries, entry)
		return
	}
	c.add <- entry
}

// Remove drops the named entry. It returns an error when no entry with
// that name exists.
func (c *Cron) Remove(name string) error {
	if c.running {
		found := false
		for _, e := range c.Entries() {
			if e.Name == name {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("cron: no entry named %q", name)
		}
		c.remove <- name
		return nil
	}

	if c.pos(name) == -1 {
		return fmt.Errorf("cron: no entry named %q", name)
	}
	c.removeEntry(name)
	return nil
}

// Entries returns a snapshot of the cron entries.
func (c *Cron) Entries() []*Entry {
	if c.running {
		c.snapshot <- nil
		return <-c.snapshot
	}
	return c.entrySnapshot()
}

// Location returns the time zone this Cron schedules in.
func (c *Cron) Location() *time.Location {
	return c.location
}

// Start the cron scheduler in its own goroutine, or no-op if already
// started.
func (c *Cron) Start() {
	if c.running {
		return
	}
	c.running = true
	go c.run()
}

// Run the cron scheduler in the calling goroutine, or no-op if already
// running.
func (c *Cron) Run() {
	if c.running {
		return
	}
	c.running = true
	c.run()
}

// Stop the scheduler. Jobs already started are not interrupted.
func (c *Cron) Stop() {
	if !c.running {
		return
	}
	c.stop <- struct{}{}
	c.running = false
}

// Close stops the scheduler. It exists so a Cron can be handed to
// shutdown managers that expect a Closer.
func (c *Cron) Close() error {
	c.Stop()
	return nil
}

// run executes the scheduler loop: sleep until the soonest entry, fire
// every entry that is due, repeat.
func (c *Cron) run() {
	now := c.now()

	// The startup pass: every entry fires once, then follows its
	// schedule.
	for _, entry := range c.entries {
		entry.Next = now
	}
	recordJobsCount(len(c.entries))

	for {
		sort.Sort(byTime(c.entries))

		var effective time.Time
		if len(c.entries) == 0 || c.entries[0].Next.IsZero() {
			// Nothing runnable. Sleep until an entry is added.
			effective = now.AddDate(10, 0, 0)
		} else {
			effective = c.entries[0].Next
		}

		select {
		case now = <-time.After(effective.Sub(now)):
			now = now.In(c.location)
			var fired []*Entry
			for _, e := range c.entries {
				if e.Next.After(effective) || e.Next.IsZero() {
					break
				}
				c.startJob(e, e.Next)
				e.Prev = e.Next
				e.Next = e.Schedule.Next(effective)
				recordNextRun(e.Name, e.Next)
				if e.once {
					fired = append(fired, e)
				}
			}
			for _, e := range fired {
				c.removeRef(e)
			}
			if len(fired) > 0 {
				recordJobsCount(len(c.entries))
			}
			continue

		case newEntry := <-c.add:
			newEntry.Next = newEntry.Schedule.Next(c.now())
			c.entries = append(c.entries, newEntry)
			recordNextRun(newEntry.Name, newEntry.Next)
			recordJobsCount(len(c.entries))

		case name := <-c.remove:
			c.removeEntry(name)
			recordJobsCount(len(c.entries))

		case <-c.snapshot:
			c.snapshot <- c.entrySnapshot()

		case <-c.stop:
			return
		}

		now = c.now()
	}
}

// startJob runs the given entry's job in a new goroutine, guarded by
// the distributed tick lock when one is configured.
func (c *Cron) startJob(e *Entry, scheduled time.Time) {
	name, job := e.Name, e.Job
	go func() {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				c.logf("cron: job %s panicked: %v", name, r)
				recordJobRun(name, start, fmt.Errorf("panic: %v", r))
			}
		}()
		if !c.acquireTick(name, scheduled) {
			return
		}
		job.Run()
		recordJobRun(name, start, nil)
	}()
}

// acquireTick claims this scheduled tick of the named entry. Lock
// errors do not stop the job.
func (c *Cron) acquireTick(name string, scheduled time.Time) bool {
	if c.redisClient == nil {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf("cron:tick:%s:%d", name, scheduled.Unix())
	ok, err := c.redisClient.SetNX(ctx, key, 1, time.Minute).Result()
	if err != nil {
		c.logf("cron: tick lock %s: %v", key, err)
		return true
	}
	return ok
}

// entrySnapshot returns a copy of the current entries.
func (c *Cron) entrySnapshot() []*Entry {
	entries := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		clone := *e
		entries = append(entries, &clone)
	}
	return entries
}

// pos returns the index of the named entry, or -1.
func (c *Cron) pos(name string) int {
	for i, e := range c.entries {
		if e.Name == name {
			return i
		}
	}
	return -1
}

// removeEntry drops the first entry with the given name.
func (c *Cron) removeEntry(name string) {
	if i := c.pos(name); i != -1 {
		c.entries = append(c.entries[:i], c.entries[i+1:]...)
	}
}

// removeRef drops the exact entry, by identity.
func (c *Cron) removeRef(target *Entry) {
	for i, e := range c.entries {
		if e == target {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return
		}
	}
}

// now returns the current time in the configured location.
func (c *Cron) now() time.Time {
	return time.Now().In(c.location)
}

func (c *Cron) logf(format string, args ...interface{}) {
	if c.ErrorLog != nil && c.ErrorLog.Log != nil {
		c.ErrorLog.Log.Errorf(format, args...)
	}
}
