package recovery

import (
	"time"

	"github.com/evosim/evoclient/pkg/simulation"
	"github.com/evosim/evoclient/pkg/store"
)

// Integrity weights. Snapshots and checkpoints dominate because they decide
// whether a restore can actually happen; recency only grades staleness.
const (
	weightSnapshots   = 0.4
	weightCheckpoints = 0.4
	weightRecency     = 0.2
)

// dataIntegrity scores how recoverable a session is, in [0, 1].
//
// Components:
//   - snapshot completeness: fraction of in-flight runs with a persisted
//     state snapshot (sessions with no in-flight runs score full marks)
//   - checkpoint consistency: fraction of checkpoints whose snapshot matches
//     this session and references only known run ids (no checkpoints means
//     nothing is inconsistent, so full marks)
//   - recency: linear decay of time since last activity over maxAge
//
// Pure function of its inputs.
func dataIntegrity(session *store.Session, checkpoints []*store.Checkpoint, now time.Time, maxAge time.Duration) float64 {
	return weightSnapshots*snapshotScore(session) +
		weightCheckpoints*checkpointScore(session, checkpoints) +
		weightRecency*recencyScore(session.UpdatedAt, now, maxAge)
}

func snapshotScore(session *store.Session) float64 {
	inFlight, withState := 0, 0
	for i := range session.Simulations {
		switch session.Simulations[i].Status {
		case simulation.StatusRunning, simulation.StatusPaused:
			inFlight++
			if session.Simulations[i].State != nil {
				withState++
			}
		}
	}

	if inFlight == 0 {
		return 1
	}
	return float64(withState) / float64(inFlight)
}

func checkpointScore(session *store.Session, checkpoints []*store.Checkpoint) float64 {
	if len(checkpoints) == 0 {
		return 1
	}

	consistent := 0
	for _, cp := range checkpoints {
		if checkpointConsistent(session, cp) {
			consistent++
		}
	}
	return float64(consistent) / float64(len(checkpoints))
}

func checkpointConsistent(session *store.Session, cp *store.Checkpoint) bool {
	if cp.Session == nil || cp.SessionID != session.ID || cp.Session.ID != session.ID {
		return false
	}
	for id := range cp.States {
		if cp.Session.Simulation(id) == nil {
			return false
		}
	}
	return true
}

func recencyScore(lastActivity, now time.Time, maxAge time.Duration) float64 {
	if maxAge <= 0 {
		return 1
	}

	age := now.Sub(lastActivity)
	if age <= 0 {
		return 1
	}
	if age >= maxAge {
		return 0
	}
	return 1 - float64(age)/float64(maxAge)
}
