package pipeline

import "sync"

// jobLocks hands out one mutex per job id so unrelated jobs never serialize
// against each other. At most one advance/retry holds a job's lock at a time.
type jobLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newJobLocks() *jobLocks {
	return &jobLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *jobLocks) get(jobID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[jobID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[jobID] = m
	}
	return m
}

// tryLock acquires the job's lock without blocking. A false return means a
// run is already in flight for that job.
func (l *jobLocks) tryLock(jobID string) bool {
	return l.get(jobID).TryLock()
}

func (l *jobLocks) unlock(jobID string) {
	l.get(jobID).Unlock()
}
