// Storepulse - Multi-Tenant Content Metrics Aggregation
// Copyright 2026 Storepulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storepulse/storepulse

package sync

import (
	"sort"
	stdsync "sync"
)

// inflightSet tracks which jobs are currently running in this process. The
// database lock serializes per-store work across processes; this guards
// whole-job reentry within one.
type inflightSet struct {
	mu   *stdsync.Mutex
	jobs map[string]bool
}

func newInflightSet() inflightSet {
	return inflightSet{mu: &stdsync.Mutex{}, jobs: make(map[string]bool)}
}

func (s inflightSet) tryAdd(job string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jobs[job] {
		return false
	}
	s.jobs[job] = true
	return true
}

func (s inflightSet) has(job string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[job]
}

func (s inflightSet) remove(job string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, job)
}

func (s inflightSet) list() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.jobs))
	for job := range s.jobs {
		out = append(out, job)
	}
	sort.Strings(out)
	return out
}
