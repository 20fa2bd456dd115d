package core

import "sync"

// patientLocks hands out one RWMutex per patient. Decay sweeps take the
// write lock so no query interleaves with a multi-record rewrite; queries
// and reinforcement take the read lock and proceed concurrently.
type patientLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

func newPatientLocks() *patientLocks {
	return &patientLocks{locks: make(map[string]*sync.RWMutex)}
}

// forPatient returns the mutex for a patient, creating it on first use.
// Locks are never removed; the per-patient footprint is one mutex.
func (p *patientLocks) forPatient(patientID string) *sync.RWMutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.locks[patientID]
	if !ok {
		lock = &sync.RWMutex{}
		p.locks[patientID] = lock
	}
	return lock
}
