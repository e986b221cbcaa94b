// Demo: drives a running plife-server through the client package.
//
// It uploads a three-type "predator chase" world, watches it run for a
// few seconds, perturbs it with an impulse, and saves a snapshot.
//
// Start the server first:
//
//	plife-server --addr :8080 --snapshot-dir /tmp/plife
//
// Then:
//
//	demo --server http://localhost:8080
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/daniacca/plife/internal/plife"
	"github.com/daniacca/plife/pkg/client"
)

func main() {
	var (
		serverURL = flag.String("server", "http://localhost:8080", "plife server base URL")
		simID     = flag.String("sim-id", "demo", "simulation ID to create")
		seconds   = flag.Int("seconds", 5, "how long to let the simulation run")
		webhook   = flag.String("webhook", "", "optional webhook URL for lifecycle events")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*seconds+30)*time.Second)
	defer cancel()

	c := client.New(*serverURL)

	// Three types chasing each other in a cycle: 0 chases 1, 1 chases 2,
	// 2 chases 0. Same-type pairs mildly flock, which gives the classic
	// gliding cell shapes.
	world := client.NewWorld("predator-chase").
		Seed(42).
		Particles(3000).
		Types(3).
		Torus(1, 1).
		DT(0.02).
		FrictionHalfLife(0.04).
		MaxRadius(0.1).
		Rule(0, 0, 0.3).Rule(1, 1, 0.3).Rule(2, 2, 0.3).
		Rule(0, 1, 0.8).Rule(1, 0, -0.4).
		Rule(1, 2, 0.8).Rule(2, 1, -0.4).
		Rule(2, 0, 0.8).Rule(0, 2, -0.4)

	fmt.Printf("Creating simulation %q on %s...\n", *simID, *serverURL)
	if err := c.ApplyWorld(ctx, *simID, world); err != nil {
		fail("apply world: %v", err)
	}

	if *webhook != "" {
		if err := c.RegisterWebhook(ctx, "demo-hook", *webhook, nil); err != nil {
			fail("register webhook: %v", err)
		}
		fmt.Printf("Webhook registered: %s\n", *webhook)
	}

	if err := c.Start(ctx, *simID, 20*time.Millisecond); err != nil {
		fail("start: %v", err)
	}
	fmt.Printf("Running for %ds...\n", *seconds)

	// Poll stats once a second while the loop runs.
	for i := 0; i < *seconds; i++ {
		time.Sleep(time.Second)
		status, err := c.Stats(ctx, *simID)
		if err != nil {
			fail("stats: %v", err)
		}
		fmt.Printf("  frame=%d fps=%.1f last=%v\n",
			status.Frame, status.Stats.FPS, status.Stats.LastFrame.Total)
	}

	// Kick everything toward the center and let it settle.
	fmt.Println("Applying impulse toward the center...")
	if err := c.Impulse(ctx, *simID, plife.Vec2{X: 0.5, Y: 0.5}, 0.05); err != nil {
		fail("impulse: %v", err)
	}
	time.Sleep(2 * time.Second)

	if err := c.Stop(ctx, *simID); err != nil {
		fail("stop: %v", err)
	}

	path, err := c.SaveSnapshot(ctx, *simID)
	if err != nil {
		fmt.Printf("Snapshot not saved (is --snapshot-dir configured?): %v\n", err)
	} else {
		fmt.Printf("Snapshot saved on the server: %s\n", path)
	}

	snapshot, err := c.Snapshot(ctx, *simID)
	if err != nil {
		fail("snapshot: %v", err)
	}
	fmt.Printf("Done: %d particles at frame %d\n", len(snapshot.Particles), snapshot.Frame)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "demo: "+format+"\n", args...)
	os.Exit(1)
}
