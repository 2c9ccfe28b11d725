package simulation

import (
	"time"

	"github.com/evosim/evoclient/pkg/protocol"
)

// commandKind identifies a user command delivered to the mailbox.
type commandKind int

const (
	cmdStart commandKind = iota
	cmdPause
	cmdResume
	cmdCancel
)

// event is a mailbox entry: exactly one field group is set.
type event struct {
	// command, valid when isCommand
	isCommand bool
	command   commandKind
	params    protocol.Parameters

	// server event, valid when server != nil
	server *protocol.Event

	// timer tick, valid when isTick
	isTick bool
	now    time.Time
}

// effectKind identifies a side effect requested by a transition.
type effectKind int

const (
	// effectSend transmits a wire command.
	effectSend effectKind = iota

	// effectStartTicker arms the 1 Hz elapsed ticker.
	effectStartTicker

	// effectStopTicker disarms the ticker.
	effectStopTicker

	// effectRejected reports a command that was a no-op
	// (pause/cancel while the connection is closed).
	effectRejected
)

// effect is a side effect produced by the pure transition function and
// executed by the machine loop.
type effect struct {
	kind effectKind
	cmd  protocol.Command
	note string
}

// applyContext carries the environment inputs a transition may consult.
type applyContext struct {
	now      time.Time
	connOpen bool
	params   protocol.Parameters
}

// apply is the pure transition function: (state, event) -> (state, effects).
//
// It never blocks, never touches the network, and never mutates its input.
func apply(state State, ev event, ctx applyContext) (State, []effect) {
	switch {
	case ev.isCommand:
		return applyCommand(state, ev, ctx)
	case ev.server != nil:
		return applyServer(state, ev.server, ctx)
	case ev.isTick:
		return applyTick(state, ev.now)
	default:
		return state, nil
	}
}

// applyCommand handles user-issued commands.
func applyCommand(state State, ev event, ctx applyContext) (State, []effect) {
	switch ev.command {
	case cmdStart:
		// From paused, start is a resume trigger: counters survive and the
		// ticker is rearmed instead of the run restarting from scratch.
		if state.Status == StatusPaused {
			if !ctx.connOpen {
				return state, []effect{{kind: effectRejected, note: "start ignored: connection not open"}}
			}

			next := state
			next.Status = StatusRunning
			return next, []effect{
				{kind: effectSend, cmd: protocol.StartCommand(ev.params)},
				{kind: effectStartTicker},
			}
		}

		if !state.Status.Restartable() {
			return state, []effect{{kind: effectRejected, note: "start ignored: run already in progress"}}
		}

		// Starting always resets counters and records a fresh start reference.
		next := State{
			Status:           StatusRunning,
			TotalGenerations: ev.params.NumGenerations,
			StartedAt:        ctx.now,
		}
		return next, []effect{
			{kind: effectSend, cmd: protocol.StartCommand(ev.params)},
			{kind: effectStartTicker},
		}

	case cmdResume:
		if state.Status != StatusPaused {
			return state, []effect{{kind: effectRejected, note: "resume ignored: not paused"}}
		}
		if !ctx.connOpen {
			return state, []effect{{kind: effectRejected, note: "resume ignored: connection not open"}}
		}

		next := state
		next.Status = StatusRunning
		// The wire protocol has no dedicated resume message; the server
		// resumes a paused run on a repeated start command.
		return next, []effect{
			{kind: effectSend, cmd: protocol.StartCommand(ctx.params)},
			{kind: effectStartTicker},
		}

	case cmdPause:
		if state.Status != StatusRunning {
			return state, []effect{{kind: effectRejected, note: "pause ignored: not running"}}
		}
		if !ctx.connOpen {
			return state, []effect{{kind: effectRejected, note: "pause ignored: connection not open"}}
		}

		next := state
		next.Status = StatusPaused
		next.EstimatedRemaining = 0
		return next, []effect{
			{kind: effectSend, cmd: protocol.PauseCommand()},
			{kind: effectStopTicker},
		}

	case cmdCancel:
		if state.Status != StatusRunning && state.Status != StatusPaused {
			return state, []effect{{kind: effectRejected, note: "cancel ignored: no active run"}}
		}
		if !ctx.connOpen {
			return state, []effect{{kind: effectRejected, note: "cancel ignored: connection not open"}}
		}

		// Local state is authoritative: transition before any server ack.
		next := state
		next.Status = StatusCancelled
		next.EstimatedRemaining = 0
		return next, []effect{
			{kind: effectSend, cmd: protocol.CancelCommand()},
			{kind: effectStopTicker},
		}

	default:
		return state, nil
	}
}

// applyServer handles server-pushed events.
func applyServer(state State, server *protocol.Event, ctx applyContext) (State, []effect) {
	switch server.Type {
	case protocol.EventSimulationUpdate:
		if state.Status != StatusRunning {
			// Includes cancel precedence: updates never move state away
			// from cancelled (or any other non-running status).
			return state, nil
		}
		update := server.Update
		if update == nil {
			return state, nil
		}
		if update.Generation < state.CurrentGeneration {
			// Reordered delivery: stale generations are filtered, not reordered.
			return state, nil
		}

		next := state
		next.CurrentGeneration = update.Generation
		if update.Progress > next.Progress {
			next.Progress = update.Progress
		}
		next.PopulationSize = update.PopulationSize
		next.ResistantCount = update.ResistantCount
		next.AntibioticConcentration = update.AntibioticConcentration
		next.Elapsed = ctx.now.Sub(state.StartedAt)
		next.EstimatedRemaining = estimateRemaining(next.Elapsed, next.Progress)
		return next, nil

	case protocol.EventSimulationComplete:
		if state.Status != StatusRunning {
			return state, nil
		}

		next := state
		next.Status = StatusCompleted
		next.Progress = 100
		next.EstimatedRemaining = 0
		next.Elapsed = ctx.now.Sub(state.StartedAt)
		return next, []effect{{kind: effectStopTicker}}

	case protocol.EventError:
		next := state
		next.Status = StatusError
		next.ErrorMessage = server.Message
		next.EstimatedRemaining = 0
		return next, []effect{{kind: effectStopTicker}}

	default:
		return state, nil
	}
}

// applyTick refreshes elapsed time while running.
func applyTick(state State, now time.Time) (State, []effect) {
	if state.Status != StatusRunning {
		return state, nil
	}

	next := state
	next.Elapsed = now.Sub(state.StartedAt)
	next.EstimatedRemaining = estimateRemaining(next.Elapsed, next.Progress)
	return next, nil
}

// estimateRemaining projects time to completion as elapsed*(100/progress - 1),
// clamped to >= 0. Undefined (zero) while progress is zero.
func estimateRemaining(elapsed time.Duration, progress float64) time.Duration {
	if progress <= 0 {
		return 0
	}

	remaining := time.Duration(float64(elapsed) * (100/progress - 1))
	if remaining < 0 {
		return 0
	}
	return remaining
}
