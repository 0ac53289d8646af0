package procreg

// Registry tracks every process seen in the session, keyed by pid,
// plus a recently-ended pool keyed by name for process-level reuse
// (spec §4.7, §4.7.a).
type Registry struct {
	live  map[int32]*Process
	ended map[string]*Process
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{live: make(map[int32]*Process), ended: make(map[string]*Process)}
}

// Get looks up a live process by pid.
func (r *Registry) Get(pid int32) (*Process, bool) {
	p, ok := r.live[pid]
	return p, ok
}

// Ensure returns the live process for pid, creating it if absent
// (spec §4.7, "create processes on demand").
func (r *Registry) Ensure(pid int32) *Process {
	p, ok := r.live[pid]
	if !ok {
		p = NewProcess(pid)
		r.live[pid] = p
	}
	return p
}

// Fork creates childPID as a new process, attempting reuse of a
// recently-ended process with the same name as parent before falling
// back to a fresh one (spec §4.7.a: "On fork into a new process with a
// known prior name: attempt to rebind a recently-ended process with
// the same name; success suppresses fresh start-time stamps").
//
// reused reports whether an existing entry was rebound; when true, the
// caller should not stamp a fresh process start time.
func (r *Registry) Fork(childPID int32, parentName string) (child *Process, reused bool) {
	if parentName != "" {
		if p, ok := r.ended[parentName]; ok {
			delete(r.ended, parentName)
			p.PID = childPID
			r.live[childPID] = p
			return p, true
		}
	}
	p := NewProcess(childPID)
	p.Name = parentName
	r.live[childPID] = p
	return p, false
}

// Retire removes pid from the live set. If keepForReuse is set and the
// process has a name, it becomes eligible for a future Fork/Execve
// rebind.
func (r *Registry) Retire(pid int32, keepForReuse bool) {
	p, ok := r.live[pid]
	if !ok {
		return
	}
	delete(r.live, pid)
	if keepForReuse && p.Name != "" {
		r.ended[p.Name] = p
	}
}

// Execve retires the process under its old identity at retireAt, then
// attempts to reuse a recently-ended process under newName before
// falling back to continuing the same *Process with the new name
// (spec §4.7.a: "On execve: retire the old entity...then attempt
// reuse under the new name").
//
// Unlike Fork, execve doesn't change pid, so "retire" here means
// clearing start-time state and checking the ended pool for a
// rebind candidate; if none is found, the existing process entry is
// kept (renamed in place) rather than dropped, since its pid is still
// live and owns the thread that issued the execve.
func (r *Registry) Execve(pid int32, newName string, retireAt uint64) (proc *Process, reused bool) {
	p, ok := r.live[pid]
	if !ok {
		p = NewProcess(pid)
		r.live[pid] = p
	}
	oldName := p.Name
	if oldName != "" {
		r.ended[oldName] = &Process{PID: pid, Name: oldName, StartTime: p.StartTime, HasStart: p.HasStart}
	}

	if reuse, ok := r.ended[newName]; ok && newName != "" {
		delete(r.ended, newName)
		reuse.PID = pid
		reuse.Unwinder = p.Unwinder
		reuse.Threads = p.Threads
		reuse.JitDump = p.JitDump
		reuse.ProfileHandle = p.ProfileHandle
		r.live[pid] = reuse
		return reuse, true
	}

	p.Name = newName
	p.HasStart = false
	return p, false
}
