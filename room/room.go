// room/room.go
package room

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/wfunc/bb84server/logger"
	"github.com/wfunc/bb84server/models"
	"github.com/wfunc/bb84server/network"
	"github.com/wfunc/bb84server/quantum"
	"github.com/wfunc/bb84server/state"
	"github.com/wfunc/bb84server/timer"
)

var ErrClosed = errors.New("room closed")

const (
	archiveTimeout = 5 * time.Second
	archiveBacklog = 64
)

// Options configures a Room. Broadcaster is required; the rest fall back to
// in-process defaults.
type Options struct {
	Broadcaster      Broadcaster
	Archive          Archive
	Metrics          Metrics
	Source           quantum.Source
	Timers           *timer.TimerManager
	AutoAdvanceDelay time.Duration
}

// Room owns the single round in play. Every command runs on the room loop, one
// at a time, so the machine never sees concurrent access and each broadcast
// reflects a state that existed.
type Room struct {
	machine     *state.Machine
	scheduler   *Scheduler
	broadcaster Broadcaster
	archive     Archive
	metrics     Metrics
	ownTimers   *timer.TimerManager
	commands    chan command
	closeChan   chan struct{}
	closeOnce   sync.Once
	done        chan struct{}
	saves       chan models.RoundRecord
	archiving   sync.WaitGroup
}

type command struct {
	name      string
	run       func() (state.Outcome, error)
	reply     chan result
	submitted time.Time
}

type result struct {
	outcome state.Outcome
	err     error
}

// NewRoom starts the room loop.
func NewRoom(opts Options) *Room {
	r := &Room{
		broadcaster: opts.Broadcaster,
		archive:     opts.Archive,
		metrics:     opts.Metrics,
		commands:    make(chan command),
		closeChan:   make(chan struct{}),
		done:        make(chan struct{}),
	}

	src := opts.Source
	if src == nil {
		src = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	r.machine = state.NewMachine(src)

	timers := opts.Timers
	if timers == nil {
		timers = timer.NewTimerManager(timer.DefaultResolution)
		r.ownTimers = timers
	}
	r.scheduler = NewScheduler(timers, opts.AutoAdvanceDelay)

	if r.archive != nil {
		r.saves = make(chan models.RoundRecord, archiveBacklog)
		r.archiving.Add(1)
		go r.archiveLoop()
	}
	go r.loop()
	return r
}

func (r *Room) loop() {
	defer close(r.done)
	for {
		select {
		case cmd := <-r.commands:
			r.execute(cmd)
		case <-r.closeChan:
			r.scheduler.Cancel()
			return
		}
	}
}

func (r *Room) execute(cmd command) {
	outcome, err := cmd.run()
	if err == nil && outcome == state.Applied {
		r.publish()
	}

	if r.metrics != nil && cmd.name != "" {
		label := outcome.String()
		if err != nil {
			label = "error"
		}
		r.metrics.ObserveIntent(cmd.name, label, time.Since(cmd.submitted))
	}

	if cmd.reply != nil {
		cmd.reply <- result{outcome: outcome, err: err}
	}
}

// publish sends the current snapshot to every subscriber.
func (r *Room) publish() {
	data, err := json.Marshal(r.machine.Snapshot())
	if err != nil {
		logger.Log.Errorf("Failed to encode game state: %v", err)
		return
	}
	if err := r.broadcaster.BroadcastToAll(network.MsgTypeGameState, data); err != nil {
		logger.Log.Warnf("Failed to broadcast game state: %v", err)
	}
}

func (r *Room) submit(ctx context.Context, name string, run func() (state.Outcome, error)) (state.Outcome, error) {
	cmd := command{name: name, run: run, reply: make(chan result, 1), submitted: time.Now()}

	select {
	case r.commands <- cmd:
	case <-ctx.Done():
		return state.Ignored, ctx.Err()
	case <-r.closeChan:
		return state.Ignored, ErrClosed
	}

	// The loop replies to every command it accepts, so once enqueued the
	// caller always learns the real outcome. ctx only bounds the enqueue.
	res := <-cmd.reply
	return res.outcome, res.err
}

// Join occupies role's slot. Admin may join any number of times.
func (r *Room) Join(ctx context.Context, role state.Role) error {
	_, err := r.submit(ctx, "join", func() (state.Outcome, error) {
		if err := r.machine.Join(role); err != nil {
			return state.Ignored, err
		}
		r.reportConnected()
		return state.Applied, nil
	})
	return err
}

// Leave frees role's slot.
func (r *Room) Leave(ctx context.Context, role state.Role) error {
	_, err := r.submit(ctx, "leave", func() (state.Outcome, error) {
		outcome := r.machine.Leave(role)
		r.reportConnected()
		return outcome, nil
	})
	return err
}

func (r *Room) reportConnected() {
	if r.metrics != nil {
		players := r.machine.State().Players
		r.metrics.SetConnectedPlayers(players.ConnectedCount())
	}
}

func (r *Room) SetAliceBit(ctx context.Context, bit quantum.Bit) (state.Outcome, error) {
	return r.submit(ctx, "setAliceBit", func() (state.Outcome, error) {
		return r.machine.SetAliceBit(bit)
	})
}

func (r *Room) SetBasisFlip(ctx context.Context, role state.Role, flip bool) (state.Outcome, error) {
	return r.submit(ctx, "setBasisFlip", func() (state.Outcome, error) {
		return r.machine.SetBasisFlip(role, flip)
	})
}

// UpdateSlot merges a partial update into role's slot.
func (r *Room) UpdateSlot(ctx context.Context, role state.Role, u state.SlotUpdate) (state.Outcome, error) {
	return r.submit(ctx, "updatePlayer", func() (state.Outcome, error) {
		return r.machine.UpdateSlot(role, u)
	})
}

func (r *Room) SendQubit(ctx context.Context) (state.Outcome, error) {
	return r.apply(ctx, state.IntentSendQubit)
}

func (r *Room) EveSkip(ctx context.Context) (state.Outcome, error) {
	return r.apply(ctx, state.IntentEveSkip)
}

func (r *Room) EveMeasure(ctx context.Context) (state.Outcome, error) {
	return r.apply(ctx, state.IntentEveMeasure)
}

// BobMeasure completes the round, archives it and schedules the next one.
func (r *Room) BobMeasure(ctx context.Context) (state.Outcome, error) {
	return r.submit(ctx, state.IntentBobMeasure.String(), func() (state.Outcome, error) {
		outcome, err := r.machine.Apply(state.IntentBobMeasure)
		if err == nil && outcome == state.Applied {
			r.completed()
		}
		return outcome, err
	})
}

// NextRound advances immediately, replacing any pending auto-advance.
func (r *Room) NextRound(ctx context.Context) (state.Outcome, error) {
	return r.submit(ctx, state.IntentNextRound.String(), func() (state.Outcome, error) {
		r.scheduler.Cancel()
		return r.machine.Apply(state.IntentNextRound)
	})
}

// ResetGame restarts the current round, replacing any pending auto-advance.
func (r *Room) ResetGame(ctx context.Context) (state.Outcome, error) {
	return r.submit(ctx, state.IntentResetGame.String(), func() (state.Outcome, error) {
		r.scheduler.Cancel()
		return r.machine.Apply(state.IntentResetGame)
	})
}

func (r *Room) apply(ctx context.Context, intent state.Intent) (state.Outcome, error) {
	return r.submit(ctx, intent.String(), func() (state.Outcome, error) {
		return r.machine.Apply(intent)
	})
}

// query runs fn on the loop without recording it as an intent.
func (r *Room) query(ctx context.Context, fn func()) error {
	_, err := r.submit(ctx, "", func() (state.Outcome, error) {
		fn()
		return state.Ignored, nil
	})
	return err
}

// Snapshot returns the broadcast view of the current state.
func (r *Room) Snapshot(ctx context.Context) (state.Snapshot, error) {
	var snap state.Snapshot
	if err := r.query(ctx, func() { snap = r.machine.Snapshot() }); err != nil {
		return state.Snapshot{}, err
	}
	return snap, nil
}

// State returns the full round state.
func (r *Room) State(ctx context.Context) (state.RoundState, error) {
	var s state.RoundState
	if err := r.query(ctx, func() { s = r.machine.State() }); err != nil {
		return state.RoundState{}, err
	}
	return s, nil
}

// AutoAdvancePending reports whether a completed round is waiting to advance.
func (r *Room) AutoAdvancePending(ctx context.Context) (bool, error) {
	var pending bool
	if err := r.query(ctx, func() { pending = r.scheduler.Pending() }); err != nil {
		return false, err
	}
	return pending, nil
}

// completed runs on the loop right after a round reaches the complete phase.
func (r *Room) completed() {
	s := r.machine.State()
	if r.metrics != nil {
		r.metrics.IncRoundsCompleted()
	}
	if r.saves != nil {
		select {
		case r.saves <- recordFor(s, time.Now()):
		default:
			logger.Log.Warnf("Archive backlog full, dropping round %d", s.Round)
		}
	}
	r.scheduler.Schedule(r.fireAutoAdvance)
}

// archiveLoop writes completed rounds in order, off the room loop.
func (r *Room) archiveLoop() {
	defer r.archiving.Done()
	for rec := range r.saves {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		if err := r.archive.SaveRound(ctx, rec); err != nil {
			logger.Log.Errorf("Failed to archive round %d: %v", rec.Round, err)
		}
		cancel()
	}
}

// fireAutoAdvance runs on the timer goroutine. The loop checks the handle, so a
// timer that fired after being cancelled does nothing.
func (r *Room) fireAutoAdvance(handle int64) {
	cmd := command{
		name: "autoAdvance",
		run: func() (state.Outcome, error) {
			if !r.scheduler.Claim(handle) {
				return state.Ignored, nil
			}
			return r.machine.Apply(state.IntentNextRound)
		},
		submitted: time.Now(),
	}
	select {
	case r.commands <- cmd:
	case <-r.closeChan:
	}
}

// Close stops the loop and waits for pending archive writes.
func (r *Room) Close() {
	r.closeOnce.Do(func() {
		close(r.closeChan)
		<-r.done
		if r.saves != nil {
			close(r.saves)
			r.archiving.Wait()
		}
		if r.ownTimers != nil {
			r.ownTimers.Stop()
		}
	})
}

func recordFor(s state.RoundState, at time.Time) models.RoundRecord {
	alice := s.Players.Slot(state.RoleAlice)
	eve := s.Players.Slot(state.RoleEve)
	bob := s.Players.Slot(state.RoleBob)

	rec := models.RoundRecord{
		Round:       s.Round,
		AliceBit:    alice.Bit,
		AliceBasis:  quantum.BasisFor(alice.BasisFlip),
		Intercepted: eve.Measured != nil,
		EveBasis:    quantum.BasisFor(eve.BasisFlip),
		BobBasis:    quantum.BasisFor(bob.BasisFlip),
		CompletedAt: at,
	}
	if eve.Measured != nil {
		v := *eve.Measured
		rec.EveValue = &v
	}
	if bob.Measured != nil {
		rec.BobValue = *bob.Measured
	}
	return rec
}
