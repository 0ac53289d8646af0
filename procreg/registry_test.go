package procreg

import "testing"

func TestEnsureCreatesOnDemand(t *testing.T) {
	r := New()
	p := r.Ensure(100)
	if p.PID != 100 {
		t.Errorf("PID = %d, want 100", p.PID)
	}
	p2 := r.Ensure(100)
	if p2 != p {
		t.Error("Ensure should return the same instance for a live pid")
	}
}

func TestForkReusesRecentlyEndedProcessByName(t *testing.T) {
	r := New()
	old := r.Ensure(50)
	old.Name = "worker"
	old.StartTime = 1000
	old.HasStart = true
	r.Retire(50, true)

	child, reused := r.Fork(51, "worker")
	if !reused {
		t.Fatal("Fork: want reuse of recently-ended process")
	}
	if child != old {
		t.Error("Fork: want the same *Process instance rebound")
	}
	if child.PID != 51 {
		t.Errorf("PID = %d, want 51", child.PID)
	}
	if _, stillLive := r.Get(50); stillLive {
		t.Error("old pid should no longer be live after rebind")
	}
}

func TestForkWithoutReuseCreatesFresh(t *testing.T) {
	r := New()
	child, reused := r.Fork(60, "unknownparent")
	if reused {
		t.Fatal("Fork: want no reuse, nothing ended with that name")
	}
	if child.Name != "unknownparent" {
		t.Errorf("Name = %q, want unknownparent", child.Name)
	}
}

func TestRetireWithoutReuseDropsProcess(t *testing.T) {
	r := New()
	r.Ensure(10).Name = "transient"
	r.Retire(10, false)
	if _, ok := r.Fork(11, "transient"); ok {
		t.Error("process retired without keepForReuse should not be reusable")
	}
}

func TestExecveRetiresOldNameAndReusesIfAvailable(t *testing.T) {
	r := New()
	p := r.Ensure(20)
	p.Name = "bash"
	p.StartTime = 5
	p.HasStart = true

	// Pre-seed an ended "myapp" entry to be picked up by the execve.
	preexisting := NewProcess(999)
	preexisting.Name = "myapp"
	r.ended["myapp"] = preexisting

	newProc, reused := r.Execve(20, "myapp", 100)
	if !reused {
		t.Fatal("Execve: want reuse of pre-ended myapp entry")
	}
	if newProc.PID != 20 {
		t.Errorf("PID = %d, want 20 (execve keeps the pid)", newProc.PID)
	}
	if _, ok := r.ended["bash"]; !ok {
		t.Error("old name 'bash' should now be in the ended pool")
	}
}

func TestExecveWithoutReuseRenamesInPlace(t *testing.T) {
	r := New()
	p := r.Ensure(30)
	p.Name = "bash"
	p.HasStart = true

	newProc, reused := r.Execve(30, "myapp", 100)
	if reused {
		t.Fatal("Execve: want no reuse, nothing ended under myapp")
	}
	if newProc != p {
		t.Error("Execve without reuse should rename the existing process in place")
	}
	if newProc.Name != "myapp" {
		t.Errorf("Name = %q, want myapp", newProc.Name)
	}
	if newProc.HasStart {
		t.Error("HasStart should be cleared so the dispatcher stamps a fresh start time")
	}
}

func TestThreadSetReuse(t *testing.T) {
	ts := newThreadSet()
	old := &Thread{TID: 5, Name: "worker-0"}
	ts.Put(old)
	ts.Retire(5, true)

	reused, ok := ts.TryReuse("worker-0")
	if !ok || reused != old {
		t.Fatal("TryReuse: want the retired thread back")
	}
	if _, ok := ts.TryReuse("worker-0"); ok {
		t.Error("TryReuse should only return a given entry once")
	}
}
