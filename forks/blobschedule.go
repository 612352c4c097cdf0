package forks

import (
	"encoding/json"
	"strings"
)

// ForkBlobSchedule is the blob parameter set of a single fork.
type ForkBlobSchedule struct {
	TargetBlobsPerBlock   uint64 `json:"target"`
	MaxBlobsPerBlock      uint64 `json:"max"`
	BaseFeeUpdateFraction uint64 `json:"baseFeeUpdateFraction"`
}

// BlobSchedule is the cumulative blob parameter schedule of all
// blob-supporting forks up to and including a given fork. It serializes as a
// map keyed by lower-case fork name, matching the genesis config format.
type BlobSchedule struct {
	entries []blobScheduleEntry
}

type blobScheduleEntry struct {
	fork     string
	schedule ForkBlobSchedule
}

func (s *BlobSchedule) append(fork string, schedule ForkBlobSchedule) {
	s.entries = append(s.entries, blobScheduleEntry{fork: fork, schedule: schedule})
}

// Get returns the schedule of the named fork.
func (s *BlobSchedule) Get(fork string) (ForkBlobSchedule, bool) {
	for _, e := range s.entries {
		if strings.EqualFold(e.fork, fork) {
			return e.schedule, true
		}
	}
	return ForkBlobSchedule{}, false
}

// Len returns the number of forks in the schedule.
func (s *BlobSchedule) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

func (s *BlobSchedule) MarshalJSON() ([]byte, error) {
	m := make(map[string]ForkBlobSchedule, len(s.entries))
	for _, e := range s.entries {
		m[strings.ToLower(e.fork)] = e.schedule
	}
	return json.Marshal(m)
}

func (s *BlobSchedule) UnmarshalJSON(data []byte) error {
	var m map[string]ForkBlobSchedule
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	s.entries = s.entries[:0]
	// Reconstruct canonical ordering from the fork list.
	for _, f := range All() {
		if sched, ok := m[strings.ToLower(f.Name())]; ok {
			s.append(f.Name(), sched)
		}
	}
	return nil
}
