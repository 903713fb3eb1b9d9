// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

package job

import (
	"sync"
	"time"

	"github.com/experimaestro/experimaestro-go/internal/connector"
	"github.com/experimaestro/experimaestro-go/internal/process"
	"github.com/experimaestro/experimaestro-go/internal/resource"
	"github.com/experimaestro/experimaestro-go/internal/xerrors"
	"github.com/experimaestro/experimaestro-go/internal/xlog"
	"github.com/experimaestro/experimaestro-go/internal/xpath"
)

// Runner performs the per-job directory preparation and spawn
// described in spec.md section 4.9: write the script and auxiliary
// files, then launch it via a launcher's process builder. It is
// supplied by the workspace, which wires the concrete script builder
// and launcher -- job itself stays below those packages in the
// dependency graph.
type Runner interface {
	// Prepare writes <name>.sh and any auxiliary files under the job's
	// directory and returns the script path to execute.
	Prepare(j *Job) (xpath.Path, error)
	// Launch starts scriptPath via the job's launcher and returns the
	// running process handle.
	Launch(j *Job, scriptPath xpath.Path) (process.Process, error)
}

// Job is one node of the readiness DAG and the authoritative in-memory
// view of a task instance's on-disk directory. It embeds resource.Resource
// so other jobs can depend on it via resource.JobDependency.
type Job struct {
	resource.Resource

	mu    sync.Mutex
	state State

	locator   xpath.Path // job directory: jobs_dir/task-id/unique-id
	name      string     // script base name, e.g. "job"
	connector connector.Connector
	runner    Runner
	logger    xlog.Logger

	lockTimeout time.Duration

	dependencies     []resource.Dependency
	depSatisfied     map[resource.Dependency]bool
	unsatisfiedCount int

	process process.Process
	lock    connector.Lock

	tokens []tokenReservation

	// OnReady is invoked (outside the job mutex) the first time the job
	// transitions to READY, so the workspace can dispatch Run().
	OnReady func(j *Job)
}

// tokenReservation pairs a counter Token with the capacity this job
// claims from it, reserved at RUN entry and given back on terminal
// state (spec.md section 5's shared-resource model).
type tokenReservation struct {
	token *resource.Token
	count int
}

// AddToken registers a counter-token reservation this job must hold
// while running: count units of token are reserved when Run() starts
// the job and released once it reaches a terminal state. Must be
// called before Run(), typically alongside the matching
// CounterDependency added via AddDependency.
func (j *Job) AddToken(token *resource.Token, count int) {
	j.mu.Lock()
	j.tokens = append(j.tokens, tokenReservation{token: token, count: count})
	j.mu.Unlock()
}

// New constructs a Job with no dependencies (ready by default); call
// AddDependency before the job is exposed to a workspace to wire its
// readiness graph.
func New(locator xpath.Path, name string, conn connector.Connector, runner Runner, logger xlog.Logger, lockTimeout time.Duration) *Job {
	if logger == nil {
		logger = xlog.NoOpLogger{}
	}
	return &Job{
		state:        Waiting,
		locator:      locator,
		name:         name,
		connector:    conn,
		runner:       runner,
		logger:       logger,
		lockTimeout:  lockTimeout,
		depSatisfied: make(map[resource.Dependency]bool),
	}
}

// Locator implements connector.Job.
func (j *Job) Locator() xpath.Path { return j.locator }

// State returns the job's current state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// IsDone implements resource.JobOrigin: a JobDependency on this job is
// satisfied only once it reaches DONE (not ERROR).
func (j *Job) IsDone() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state == Done
}

// Handle adapts a *Job to value.JobHandle so a Value can carry a
// "$job" back-reference without the value package importing job
// directly (see value.JobHandle's doc comment). Job itself cannot
// implement value.JobHandle's Locator() string directly: it already
// has a Locator() xpath.Path for connector.Job, and Go has no method
// overloading.
type Handle struct{ J *Job }

// Locator implements value.JobHandle.
func (h Handle) Locator() string { return h.J.locator.Path }

// CreateDependency implements value.JobHandle: a fresh JobDependency
// on h.J reaching DONE, per spec.md section 4.6's add_dependencies
// walk.
func (h Handle) CreateDependency() resource.Dependency {
	return resource.NewJobDependency(h.J)
}

// UnsatisfiedCount exposes the current count for readiness-monotonicity
// tests.
func (j *Job) UnsatisfiedCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.unsatisfiedCount
}

// AddDependency registers dep as something this job must wait on before
// becoming READY: per spec.md section 4.7, it appends to the
// dependency list, sets the target, initializes as unsatisfied, then
// calls Check() so a dependency already satisfied at wiring time
// settles the job's state immediately. Must be called before the job
// is submitted; dependency sets are never mutated afterward.
func (j *Job) AddDependency(dep resource.Dependency) {
	dep.SetTarget(j)
	j.mu.Lock()
	j.dependencies = append(j.dependencies, dep)
	j.depSatisfied[dep] = false
	j.unsatisfiedCount++
	j.mu.Unlock()
	registerWithOrigin(dep)
	dep.Check()
}

// dependable is what registerWithOrigin needs from a dependency's
// origin resource: somewhere to register dep so the origin's eventual
// NotifyDependents() (job completion, token release) re-checks it.
type dependable interface {
	AddDependent(resource.Dependency)
}

// registerWithOrigin registers dep against whatever Resource backs its
// origin, so that resource's NotifyDependents call (job.watch() on
// DONE, Token.Release on a freed reservation) re-checks dep instead of
// dep only ever being polled. Unrecognized Dependency implementations
// are left polling-only.
func registerWithOrigin(dep resource.Dependency) {
	switch d := dep.(type) {
	case *resource.JobDependency:
		if origin, ok := d.Origin.(dependable); ok {
			origin.AddDependent(dep)
		}
	case *resource.CounterDependency:
		d.Token.AddDependent(dep)
	}
}

// Ready reports whether the job has no unsatisfied dependencies.
func (j *Job) Ready() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.unsatisfiedCount == 0
}

// MarkReady transitions a WAITING job with no unsatisfied dependencies
// straight to READY. The workspace calls this once, right after wiring
// a new job's dependencies, for the common case of a job that starts
// out with unsatisfied_count already at zero (spec.md section 4.9
// submit() step 4: "if job.ready() ... call job.run()"); jobs that
// start with unsatisfied dependencies instead reach READY later via
// DependencyChanged.
func (j *Job) MarkReady() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != Waiting {
		return xerrors.Argument("cannot mark job %q ready from state %s", j.locator, j.state)
	}
	if j.unsatisfiedCount != 0 {
		return xerrors.Argument("cannot mark job %q ready: unsatisfied_count=%d", j.locator, j.unsatisfiedCount)
	}
	j.state = Ready
	return nil
}

// DependencyChanged implements resource.DependencyTarget: it is called
// whenever one of this job's registered dependencies re-checks and
// reports its satisfied state (including the initial settling check
// from AddDependency). Per spec.md section 4.8's WAITING<->READY
// edges. unsatisfiedCount only moves on an actual transition from the
// dependency's last known state, tracked per-dependency in
// depSatisfied -- a dependency's own Check() may call this on every
// invocation even when nothing changed.
func (j *Job) DependencyChanged(dep resource.Dependency, satisfied bool) {
	j.mu.Lock()
	if j.depSatisfied[dep] == satisfied {
		j.mu.Unlock()
		return
	}
	j.depSatisfied[dep] = satisfied

	becameReady := false
	if satisfied {
		if j.unsatisfiedCount > 0 {
			j.unsatisfiedCount--
		}
		if j.unsatisfiedCount == 0 && j.state == Waiting {
			j.state = Ready
			becameReady = true
		}
	} else {
		j.unsatisfiedCount++
		if j.state == Ready {
			j.state = Waiting
		}
	}
	onReady := j.OnReady
	j.mu.Unlock()

	if becameReady && onReady != nil {
		onReady(j)
	}
}

// Hold moves a WAITING or READY job to ON_HOLD (operator action).
func (j *Job) Hold() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != Waiting && j.state != Ready {
		return xerrors.Argument("cannot hold job %q in state %s", j.locator, j.state)
	}
	j.state = OnHold
	return nil
}

// Resume moves an ON_HOLD job back to READY or WAITING depending on
// its current unsatisfied_count (operator action + re-evaluation).
func (j *Job) Resume() error {
	j.mu.Lock()
	if j.state != OnHold {
		j.mu.Unlock()
		return xerrors.Argument("cannot resume job %q in state %s", j.locator, j.state)
	}
	if j.unsatisfiedCount == 0 {
		j.state = Ready
	} else {
		j.state = Waiting
	}
	becameReady := j.state == Ready
	onReady := j.OnReady
	j.mu.Unlock()
	if becameReady && onReady != nil {
		onReady(j)
	}
	return nil
}

// reserveTokens claims this job's registered counter-token capacity,
// rolling back any already-claimed reservation if a later one fails.
func (j *Job) reserveTokens() error {
	j.mu.Lock()
	tokens := append([]tokenReservation(nil), j.tokens...)
	j.mu.Unlock()

	for i, t := range tokens {
		if err := t.token.Reserve(t.count); err != nil {
			for _, done := range tokens[:i] {
				done.token.Release(done.count)
			}
			return err
		}
	}
	return nil
}

// releaseTokens gives back every reservation this job holds. Safe to
// call more than once or with nothing reserved.
func (j *Job) releaseTokens() {
	j.mu.Lock()
	tokens := append([]tokenReservation(nil), j.tokens...)
	j.mu.Unlock()

	for _, t := range tokens {
		t.token.Release(t.count)
	}
}

// Run performs the per-job directory preparation and spawn from
// spec.md section 4.9: acquire the job lock, create the start-lock
// file, write the script, spawn it, and detach a watcher goroutine.
func (j *Job) Run() error {
	j.mu.Lock()
	if j.state != Ready {
		j.mu.Unlock()
		return xerrors.Argument("cannot run job %q in state %s", j.locator, j.state)
	}
	j.mu.Unlock()

	if err := j.reserveTokens(); err != nil {
		return err
	}

	lockPath := j.locator.Resolve(j.name + ".lock")
	lock, err := j.connector.Lock(lockPath, j.lockTimeout)
	if err != nil {
		j.releaseTokens()
		return err
	}

	startLockPath := j.locator.Resolve(j.name + ".lock.start")
	w, err := j.connector.OStream(startLockPath)
	if err != nil {
		lock.Release()
		j.releaseTokens()
		return xerrors.IO(err, "creating start-lock file %q", startLockPath)
	}
	if err := w.Close(); err != nil {
		lock.Release()
		j.releaseTokens()
		return xerrors.IO(err, "closing start-lock file %q", startLockPath)
	}

	scriptPath, err := j.runner.Prepare(j)
	if err != nil {
		lock.Release()
		j.releaseTokens()
		return err
	}

	proc, err := j.runner.Launch(j, scriptPath)
	if err != nil {
		lock.Release()
		j.releaseTokens()
		return err
	}

	j.mu.Lock()
	j.process = proc
	j.lock = lock
	j.state = Running
	j.mu.Unlock()

	go j.watch()
	return nil
}

// watch blocks on the process's exit, determines the terminal state
// per spec.md section 4.8's RUNNING->{DONE,ERROR} rules, releases the
// job lock, and -- on clean completion only -- notifies dependents.
func (j *Job) watch() {
	j.mu.Lock()
	proc := j.process
	lock := j.lock
	j.mu.Unlock()

	exitCode := proc.ExitCode()
	donePath := j.locator.Resolve(j.name + ".done")
	doneExists := false
	if ft, err := j.connector.FileType(donePath); err == nil {
		doneExists = ft == connector.File
	}

	final := Error
	if exitCode == 0 && doneExists {
		final = Done
	}

	j.mu.Lock()
	j.state = final
	j.mu.Unlock()

	j.releaseTokens()

	if lock != nil {
		if err := lock.Release(); err != nil {
			j.logger.Warn("failed to release job lock", "job", j.locator.String(), "error", err)
		}
	}

	if final == Done {
		j.NotifyDependents()
	}
}

// Reattach binds an externally running process (found via a live pid
// file at workspace start) to this job and transitions it straight to
// RUNNING, per spec.md section 4.8's restart semantics.
func (j *Job) Reattach(pid int) error {
	proc, err := j.connector.GetProcess(j, pid)
	if err != nil {
		return err
	}

	// The token accounting lives only in memory, so a restarted
	// workspace's tokens start at zero; reattaching a still-running job
	// must re-claim its capacity or a live job would run unaccounted.
	if err := j.reserveTokens(); err != nil {
		j.logger.Warn("failed to reserve token capacity on reattach", "job", j.locator.String(), "error", err)
	}

	j.mu.Lock()
	j.process = proc
	j.state = Running
	j.mu.Unlock()

	go j.watch()
	return nil
}

// Kill sends SIGINT (force=false) or SIGTERM (force=true) to the job's
// process. Best-effort; the script's cleanup trap is responsible for
// leaving consistent state files, and the watcher goroutine settles
// the final state once the process exits.
func (j *Job) Kill(force bool) error {
	j.mu.Lock()
	proc := j.process
	state := j.state
	j.mu.Unlock()

	if state != Running || proc == nil {
		return xerrors.Argument("cannot kill job %q in state %s", j.locator, state)
	}
	return proc.Kill(force)
}

// Resubmit clears a DONE or ERROR job back to WAITING (or READY when
// no dependency is unsatisfied), truncating its state files and
// recomputing unsatisfied_count from its existing dependencies
// (explicit resubmission, spec.md section 4.8).
func (j *Job) Resubmit() error {
	j.mu.Lock()
	if !j.state.IsTerminal() {
		state := j.state
		j.mu.Unlock()
		return xerrors.Argument("cannot resubmit job %q in state %s", j.locator, state)
	}
	j.mu.Unlock()

	// connector.Connector has no remove operation (spec.md section 4.1
	// never asks for one), so "clears state files" is approximated by
	// truncating each to empty; Run()'s Lock/OStream calls recreate
	// them fresh on the next attempt.
	for _, suffix := range []string{".pid", ".exit_code", ".done", ".lock", ".lock.start", ".out", ".err"} {
		p := j.locator.Resolve(j.name + suffix)
		if ft, err := j.connector.FileType(p); err == nil && ft != connector.Unexisting {
			if w, err := j.connector.OStream(p); err == nil {
				_ = w.Close()
			}
		}
	}

	unsatisfied := 0
	depState := make(map[resource.Dependency]bool, len(j.dependencies))
	for _, d := range j.dependencies {
		s := d.Satisfied()
		depState[d] = s
		if !s {
			unsatisfied++
		}
	}

	j.mu.Lock()
	j.process = nil
	j.lock = nil
	j.depSatisfied = depState
	j.unsatisfiedCount = unsatisfied
	if unsatisfied == 0 {
		j.state = Ready
	} else {
		j.state = Waiting
	}
	becameReady := j.state == Ready
	onReady := j.OnReady
	j.mu.Unlock()

	if becameReady && onReady != nil {
		onReady(j)
	}
	return nil
}
