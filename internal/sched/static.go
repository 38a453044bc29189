package sched

import (
	"context"
	"fmt"

	"github.com/reactorcore/engine/internal/graph"
)

// OpCode is one quasi-static instruction.
type OpCode byte

const (
	OpExecute OpCode = 'e'
	OpWait    OpCode = 'w'
	OpNotify  OpCode = 'n'
	OpStop    OpCode = 's'
)

// Instruction is one step of a per-worker quasi-static program.
type Instruction struct {
	Op  OpCode
	Arg int // reaction index for 'e', semaphore index for 'w'/'n'
}

// Program is the pre-woven per-worker instruction stream a static
// schedule replaces dynamic precedence checking with. It must be
// restricted to graphs with no data-dependent triggering: execute and
// semaphore order already encode every path a dynamic run would take.
type Program struct {
	Workers     [][]Instruction
	Semaphores  int
	MaxReaction int // exclusive upper bound on valid 'e' operands
}

// Validate checks the load-time well-formedness the design notes call
// for: no instruction reads past the end, every wait has a matching
// notify, and every execute names a reaction within range.
func (p *Program) Validate() error {
	for w, prog := range p.Workers {
		waits, notifies := make(map[int]int), make(map[int]int)
		for i, ins := range prog {
			switch ins.Op {
			case OpExecute:
				if ins.Arg < 0 || ins.Arg >= p.MaxReaction {
					return fmt.Errorf("sched: worker %d instruction %d: execute references invalid reaction %d", w, i, ins.Arg)
				}
			case OpWait:
				if ins.Arg < 0 || ins.Arg >= p.Semaphores {
					return fmt.Errorf("sched: worker %d instruction %d: wait references invalid semaphore %d", w, i, ins.Arg)
				}
				waits[ins.Arg]++
			case OpNotify:
				if ins.Arg < 0 || ins.Arg >= p.Semaphores {
					return fmt.Errorf("sched: worker %d instruction %d: notify references invalid semaphore %d", w, i, ins.Arg)
				}
				notifies[ins.Arg]++
			case OpStop:
				if i != len(prog)-1 {
					return fmt.Errorf("sched: worker %d: stop must be the final instruction", w)
				}
			default:
				return fmt.Errorf("sched: worker %d instruction %d: unknown opcode %q", w, i, ins.Op)
			}
		}
		if len(prog) == 0 || prog[len(prog)-1].Op != OpStop {
			return fmt.Errorf("sched: worker %d: program must end with stop", w)
		}
	}
	total := make(map[int]int)
	for _, prog := range p.Workers {
		for _, ins := range prog {
			if ins.Op == OpWait {
				total[ins.Arg]--
			}
			if ins.Op == OpNotify {
				total[ins.Arg]++
			}
		}
	}
	for sem, balance := range total {
		if balance < 0 {
			return fmt.Errorf("sched: semaphore %d has more waits than notifies across all workers", sem)
		}
	}
	return nil
}

// qsSemaphore is a counting semaphore that starts empty, the way
// lf_semaphore_new(0) does in the source scheduler: a wait blocks until
// a matching notify has actually happened, rather than consuming a
// permit that was never posted. capacity bounds it at the number of
// notifies the program can issue against it in one tag, so release
// never blocks on a well-formed (Validate'd) program.
type qsSemaphore chan struct{}

func newQSSemaphore(capacity int) qsSemaphore {
	if capacity < 1 {
		capacity = 1
	}
	return make(qsSemaphore, capacity)
}

func (s qsSemaphore) acquire(ctx context.Context) error {
	select {
	case <-s:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s qsSemaphore) release() {
	s <- struct{}{}
}

// StaticScheduler interprets a Program: get_ready_reaction drives each
// worker's program counter through wait/notify instructions until it
// reaches an execute whose reaction is still queued. trigger_reaction
// has no analogue here and Enqueue is correspondingly inert: triggering
// is fully encoded in the static plan, as in the source scheduler.
type StaticScheduler struct {
	arena *graph.Arena
	prog  *Program
	pcs   []int
	sems  []qsSemaphore

	ctx    context.Context
	cancel context.CancelFunc
}

// NewStaticScheduler returns a scheduler that interprets prog against arena.
// prog must already have passed Validate.
func NewStaticScheduler(arena *graph.Arena, prog *Program) *StaticScheduler {
	notifyCounts := make([]int, prog.Semaphores)
	for _, worker := range prog.Workers {
		for _, ins := range worker {
			if ins.Op == OpNotify {
				notifyCounts[ins.Arg]++
			}
		}
	}
	sems := make([]qsSemaphore, prog.Semaphores)
	for i := range sems {
		sems[i] = newQSSemaphore(notifyCounts[i])
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &StaticScheduler{
		arena:  arena,
		prog:   prog,
		pcs:    make([]int, len(prog.Workers)),
		sems:   sems,
		ctx:    ctx,
		cancel: cancel,
	}
}

// StartTag resets every worker's program counter to the top of its program.
func (s *StaticScheduler) StartTag() {
	for i := range s.pcs {
		s.pcs[i] = 0
	}
}

// GetReadyReaction advances workerID's program, executing wait/notify
// instructions transparently, until it reaches an execute instruction
// whose reaction is queued (returned) or a stop instruction (tag done
// for this worker).
func (s *StaticScheduler) GetReadyReaction(workerID int) (graph.ReactionID, bool) {
	prog := s.prog.Workers[workerID]
	for {
		if s.ctx.Err() != nil {
			return 0, false
		}
		if s.pcs[workerID] >= len(prog) {
			return 0, false
		}
		ins := prog[s.pcs[workerID]]
		s.pcs[workerID]++
		switch ins.Op {
		case OpWait:
			if err := s.sems[ins.Arg].acquire(s.ctx); err != nil {
				return 0, false
			}
		case OpNotify:
			s.sems[ins.Arg].release()
		case OpStop:
			return 0, false
		case OpExecute:
			rid := graph.ReactionID(ins.Arg)
			r := s.arena.Reaction(rid)
			if !r.TryRun() {
				continue
			}
			return rid, true
		}
	}
}

// DoneWithReaction performs the documented simple atomic status
// transition; unlike the dynamic scheduler it does not enqueue
// downstream reactions, because the static plan already encodes them.
func (s *StaticScheduler) DoneWithReaction(workerID int, rid graph.ReactionID) {
	s.arena.Reaction(rid).Done()
}

// Enqueue is inert: triggering is encoded in the static plan.
func (s *StaticScheduler) Enqueue(rid graph.ReactionID) {}

// Stop cancels any worker blocked on a semaphore wait.
func (s *StaticScheduler) Stop() {
	s.cancel()
}
