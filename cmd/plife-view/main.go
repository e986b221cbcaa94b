package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/daniacca/plife/internal/plife"
)

const (
	screenWidth  = 1024
	screenHeight = 768
)

func main() {
	var (
		worldFile = flag.String("world-file", "", "path to world config JSON file (optional)")
		particles = flag.Int("particles", 4000, "number of particles (when no world file is given)")
		types     = flag.Int("types", 6, "number of particle types (when no world file is given)")
		seed      = flag.Int64("seed", 0, "random seed; 0 seeds from the clock")
		rulesFile = flag.String("rules-file", "rules.json", "path used by the S/L save/load rule matrix keys")
	)
	flag.Parse()

	cfg := plife.WorldConfig{
		Name:      "viewer",
		Seed:      *seed,
		Particles: *particles,
		Types:     *types,
		World:     plife.World{Topology: plife.TopologyTorus, Width: 1, Height: 1},
		DT:        0.02,
		MaxRadius: 0.05,
	}
	if *worldFile != "" {
		data, err := os.ReadFile(*worldFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error reading world file: %v\n", err)
			os.Exit(1)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			fmt.Fprintf(os.Stderr, "error parsing world file: %v\n", err)
			os.Exit(1)
		}
	}

	sim, err := plife.NewSimulation(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error building simulation: %v\n", err)
		os.Exit(1)
	}

	viewer := NewViewer(sim, *rulesFile)

	ebiten.SetWindowSize(screenWidth, screenHeight)
	ebiten.SetWindowTitle("plife")
	ebiten.SetTPS(60)

	if err := ebiten.RunGame(viewer); err != nil {
		log.Fatal(err)
	}
}
