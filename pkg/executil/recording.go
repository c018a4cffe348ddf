package executil

import "sync"

// Launch is a recorded Start call.
type Launch struct {
	Name string
	Args []string
}

// Recorder captures launches instead of running them. Fail, when set, picks
// the error returned for a program name.
type Recorder struct {
	Fail func(name string) error

	mu       sync.Mutex
	launches []Launch
}

func (r *Recorder) Start(name string, args ...string) error {
	r.mu.Lock()
	r.launches = append(r.launches, Launch{Name: name, Args: append([]string(nil), args...)})
	r.mu.Unlock()

	if r.Fail != nil {
		return r.Fail(name)
	}
	return nil
}

// Launches returns a copy of what was started so far.
func (r *Recorder) Launches() []Launch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Launch(nil), r.launches...)
}
