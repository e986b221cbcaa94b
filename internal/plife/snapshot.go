package plife

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ParticleState is one particle's rendering-facing state.
type ParticleState struct {
	ID   int          `json:"id"`
	Pos  Vec2         `json:"pos"`
	Vel  Vec2         `json:"vel"`
	Type ParticleType `json:"type"`
}

// Snapshot is an immutable point-in-time copy of the whole population,
// index-aligned with particle ids. Once published it is never written
// again by the simulation, so consumers (a renderer typically one
// frame behind) need no synchronization.
type Snapshot struct {
	SimulationID SimulationID    `json:"simulation_id"`
	Frame        int64           `json:"frame"`
	Particles    []ParticleState `json:"particles"`
}

// newSnapshot copies the live population into an immutable snapshot.
func newSnapshot(id SimulationID, frame int64, particles []Particle) Snapshot {
	states := make([]ParticleState, len(particles))
	for i, p := range particles {
		states[i] = ParticleState{ID: p.ID, Pos: p.Pos, Vel: p.Vel, Type: p.Type}
	}
	return Snapshot{SimulationID: id, Frame: frame, Particles: states}
}

// ValidateSnapshot performs sanity checks on a snapshot:
//   - particle ids are dense and index-aligned
//   - positions and velocities are finite
//   - types are within the table's range (when rules is not nil)
func ValidateSnapshot(snapshot Snapshot, rules *RuleTable) error {
	for i, p := range snapshot.Particles {
		if p.ID != i {
			return fmt.Errorf("particle at index %d has id %d (ids must be index-aligned)", i, p.ID)
		}
		if !p.Pos.IsFinite() || !p.Vel.IsFinite() {
			return fmt.Errorf("particle %d has non-finite state", p.ID)
		}
		if rules != nil {
			if err := rules.CheckType(p.Type); err != nil {
				return fmt.Errorf("particle %d: %w", p.ID, err)
			}
		}
	}
	return nil
}

// EncodeSnapshotJSON encodes a snapshot to JSON.
func EncodeSnapshotJSON(snapshot Snapshot) ([]byte, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshotJSON decodes a snapshot from JSON.
func DecodeSnapshotJSON(data []byte) (Snapshot, error) {
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return snapshot, nil
}

// SnapshotFileName returns the file a simulation's snapshot is stored
// under inside a snapshot directory.
func SnapshotFileName(id SimulationID) string {
	return string(id) + ".snapshot.json"
}

// SaveSnapshotFile writes a snapshot to dir, creating the directory if
// needed. The write goes through a temp file and rename so a crash
// mid-write never leaves a truncated snapshot behind.
func SaveSnapshotFile(snapshot Snapshot, dir string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("snapshot directory not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	data, err := EncodeSnapshotJSON(snapshot)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, SnapshotFileName(snapshot.SimulationID))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("failed to finalize snapshot: %w", err)
	}
	return path, nil
}

// LoadSnapshotFile reads a snapshot previously written by
// SaveSnapshotFile.
func LoadSnapshotFile(dir string, id SimulationID) (Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(dir, SnapshotFileName(id)))
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return DecodeSnapshotJSON(data)
}
