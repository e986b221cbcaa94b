package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/daniacca/plife/internal/plife"
)

func main() {
	var (
		worldFile   = flag.String("world-file", "", "path to world config JSON file (required)")
		frames      = flag.Int("frames", 100, "number of frames to run")
		simID       = flag.String("sim-id", "simulation", "simulation ID")
		snapshotOut = flag.String("snapshot-out", "", "directory to write the final snapshot to (optional)")
	)
	flag.Parse()

	if *worldFile == "" {
		fmt.Fprintf(os.Stderr, "error: --world-file is required\n")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := loadWorldFromFile(*worldFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading world config: %v\n", err)
		os.Exit(1)
	}

	sim, err := plife.NewSimulation(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error building simulation: %v\n", err)
		os.Exit(1)
	}
	sim.SetID(plife.SimulationID(*simID))

	var snapshot plife.Snapshot
	for i := 0; i < *frames; i++ {
		snapshot, err = sim.Step()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error at frame %d: %v\n", i+1, err)
			os.Exit(1)
		}
	}

	if *snapshotOut != "" {
		path, err := plife.SaveSnapshotFile(sim.LatestSnapshot(), *snapshotOut)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error saving snapshot: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Snapshot written to %s\n", path)
	}

	printSummary(cfg.Name, *frames, snapshot, sim.Stats())
}

func loadWorldFromFile(path string) (plife.WorldConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return plife.WorldConfig{}, fmt.Errorf("reading world file: %w", err)
	}

	var cfg plife.WorldConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return plife.WorldConfig{}, fmt.Errorf("parsing world JSON: %w", err)
	}

	if err := plife.ValidateWorldConfig(cfg); err != nil {
		return plife.WorldConfig{}, fmt.Errorf("validating world config: %w", err)
	}

	return cfg, nil
}

func printSummary(worldName string, frames int, snapshot plife.Snapshot, stats plife.LoopStats) {
	// Count particles by type
	counts := make(map[plife.ParticleType]int)
	for _, p := range snapshot.Particles {
		counts[p.Type]++
	}

	types := make([]plife.ParticleType, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	fmt.Printf("Simulation finished (world=%s, frames=%d, particles=%d)\n", worldName, frames, len(snapshot.Particles))
	fmt.Printf("Timing: last frame %v (rebuild %v, forces %v, integrate %v), avg %.1f fps\n",
		stats.LastFrame.Total, stats.LastFrame.Rebuild, stats.LastFrame.Forces, stats.LastFrame.Integrate, stats.FPS)
	if stats.TotalRecovered > 0 {
		fmt.Printf("Recovered %d non-finite particles during the run\n", stats.TotalRecovered)
	}
	fmt.Println("Type counts:")
	for _, t := range types {
		fmt.Printf("  type %d: %d\n", t, counts[t])
	}
}
