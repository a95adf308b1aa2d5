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
	"sync"
	"time"
)

// MetricsRecorder receives scheduler telemetry. Implementations must be
// safe for concurrent use; jobs run on their own goroutines.
type MetricsRecorder interface {
	// RecordJobRun is called after each job run with its duration. err is
	// non-nil when the job panicked.
	RecordJobRun(jobName string, duration time.Duration, err error)

	// UpdateNextRun is called whenever an entry's next activation changes.
	UpdateNextRun(jobName string, nextRun time.Time)

	// UpdateJobsCount is called whenever entries are added or removed.
	UpdateJobsCount(count int)
}

var (
	recorderMu sync.RWMutex
	recorder   MetricsRecorder
)

// SetMetricsRecorder installs the recorder shared by all Cron instances.
// Passing nil disables recording.
func SetMetricsRecorder(r MetricsRecorder) {
	recorderMu.Lock()
	recorder = r
	recorderMu.Unlock()
}

func getRecorder() MetricsRecorder {
	recorderMu.RLock()
	defer recorderMu.RUnlock()
	return recorder
}

func recordJobRun(name string, start time.Time, err error) {
	if r := getRecorder(); r != nil {
		r.RecordJobRun(name, time.Since(start), err)
	}
}

func recordNextRun(name string, next time.Time) {
	if r := getRecorder(); r != nil {
		r.UpdateNextRun(name, next)
	}
}

func recordJobsCount(count int) {
	if r := getRecorder(); r != nil {
		r.UpdateJobsCount(count)
	}
}
