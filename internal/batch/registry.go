package batch

import "sync"

// Slot is an owner's place in the Registry. It is reserved by TryStart and
// bound to a Job by Attach.
type Slot struct {
	owner string
	job   *Job
}

func (s *Slot) Owner() string { return s.owner }

// Registry maps an owner to at most one running job. All mutations happen
// under one mutex.
type Registry struct {
	mu    sync.Mutex
	slots map[string]*Slot
}

func NewRegistry() *Registry {
	return &Registry{slots: make(map[string]*Slot)}
}

// TryStart reserves owner's slot. It returns false when the owner already
// has a reserved or running job.
func (r *Registry) TryStart(owner string) (*Slot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.slots[owner]; ok {
		return nil, false
	}
	s := &Slot{owner: owner}
	r.slots[owner] = s
	return s, true
}

// Attach binds j to s. It returns false when s was cancelled in the meantime;
// j must not be run then.
func (r *Registry) Attach(s *Slot, j *Job) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.slots[s.owner] != s {
		return false
	}
	s.job = j
	j.registry = r
	j.slot = s
	return true
}

// Cancel removes owner's slot and cancels its job, if any. A reservation
// without a job yet is removed too, which makes the pending Attach fail.
func (r *Registry) Cancel(owner string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[owner]
	if !ok {
		return false
	}
	delete(r.slots, owner)
	if s.job != nil {
		s.job.cancel()
	}
	return true
}

// Release removes s if it is still the owner's current slot. It reports
// whether this call removed it; releasing twice is a no-op.
func (r *Registry) Release(s *Slot) bool {
	if s == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.slots[s.owner] != s {
		return false
	}
	delete(r.slots, s.owner)
	return true
}

// Job returns the owner's running job.
func (r *Registry) Job(owner string) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[owner]
	if !ok || s.job == nil {
		return nil, false
	}
	return s.job, true
}

// Active returns the number of occupied slots, reservations included.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

// Jobs returns the running jobs; reservations are skipped.
func (r *Registry) Jobs() []*Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	ret := make([]*Job, 0, len(r.slots))
	for _, s := range r.slots {
		if s.job != nil {
			ret = append(ret, s.job)
		}
	}
	return ret
}
