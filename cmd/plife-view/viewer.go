package main

import (
	"encoding/json"
	"image/color"
	"log"
	"math"
	"os"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/daniacca/plife/internal/plife"
)

const (
	ParticleSize    = 2.0
	MinZoom         = 0.25
	MaxZoom         = 40.0
	ImpulseStrength = 0.02
)

// Viewer renders a simulation and drives it one frame per tick.
//
// Controls:
//
//	Space        pause / resume
//	R            randomize the rule matrix
//	S / L        save / load the rule matrix to/from the rules file
//	mouse wheel  zoom
//	left drag    pan the camera
//	right hold   attract particles toward the cursor
type Viewer struct {
	sim       *plife.Simulation
	world     plife.World
	rulesFile string

	paused bool

	// Camera: world-space origin of the top-left corner plus zoom.
	// pxPerUnit is the base scale that fits the world width on screen.
	zoom           float64
	camX, camY     float64
	prevMX, prevMY float64
	pxPerUnit      float64
}

// NewViewer creates a viewer around an existing simulation.
func NewViewer(sim *plife.Simulation, rulesFile string) *Viewer {
	world := sim.Config().World
	w := world.Width
	if w <= 0 {
		w = 1
	}
	return &Viewer{
		sim:       sim,
		world:     world,
		rulesFile: rulesFile,
		zoom:      1.0,
		pxPerUnit: float64(screenWidth) / w,
	}
}

// Update is called each tick by Ebitengine
func (v *Viewer) Update() error {
	v.handleInput()

	if v.paused {
		return nil
	}

	if _, err := v.sim.Step(); err != nil {
		// Structural failures are not recoverable from the viewer; pause
		// so the last good frame stays on screen.
		log.Printf("simulation error: %v", err)
		v.paused = true
	}
	return nil
}

// handleInput processes keyboard and mouse input
func (v *Viewer) handleInput() {
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		v.paused = !v.paused
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyR) {
		if err := v.sim.RandomizeRules(); err != nil {
			log.Printf("randomize rules: %v", err)
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyS) {
		v.saveRules()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyL) {
		v.loadRules()
	}

	// Zoom
	_, wheelY := ebiten.Wheel()
	if wheelY != 0 {
		v.zoom *= math.Pow(1.1, wheelY)
		if v.zoom < MinZoom {
			v.zoom = MinZoom
		}
		if v.zoom > MaxZoom {
			v.zoom = MaxZoom
		}
	}

	// Pan (left drag)
	mx, my := ebiten.CursorPosition()
	if ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft) {
		v.camX -= (float64(mx) - v.prevMX) / (v.pxPerUnit * v.zoom)
		v.camY -= (float64(my) - v.prevMY) / (v.pxPerUnit * v.zoom)
	}
	v.prevMX = float64(mx)
	v.prevMY = float64(my)

	// Attract toward cursor (right hold)
	if ebiten.IsMouseButtonPressed(ebiten.MouseButtonRight) {
		wx, wy := v.screenToWorld(float64(mx), float64(my))
		v.sim.ApplyImpulse(plife.Vec2{X: wx, Y: wy}, ImpulseStrength)
	}
}

// Draw is called each frame by Ebitengine
func (v *Viewer) Draw(screen *ebiten.Image) {
	snapshot := v.sim.LatestSnapshot()
	numTypes := v.sim.Rules().NumTypes()

	sw := float64(screen.Bounds().Dx())
	sh := float64(screen.Bounds().Dy())

	// On a torus, tile copies of the world so panning across the seam
	// looks continuous. On the plane a single pass suffices.
	dxFrom, dxTo, dyFrom, dyTo := 0.0, 1.0, 0.0, 1.0
	if v.world.Topology == plife.TopologyTorus {
		visibleMinX := v.camX
		visibleMaxX := v.camX + sw/(v.pxPerUnit*v.zoom)
		visibleMinY := v.camY
		visibleMaxY := v.camY + sh/(v.pxPerUnit*v.zoom)
		dxFrom = math.Floor(visibleMinX / v.world.Width)
		dxTo = math.Ceil(visibleMaxX / v.world.Width)
		dyFrom = math.Floor(visibleMinY / v.world.Height)
		dyTo = math.Ceil(visibleMaxY / v.world.Height)
	}

	radius := float32(ParticleSize * v.zoom)
	for dx := dxFrom; dx < dxTo; dx++ {
		for dy := dyFrom; dy < dyTo; dy++ {
			offsetX := dx * v.world.Width
			offsetY := dy * v.world.Height
			for i := range snapshot.Particles {
				p := &snapshot.Particles[i]
				sx, sy := v.worldToScreen(p.Pos.X+offsetX, p.Pos.Y+offsetY)
				if sx < -ParticleSize || sx > sw+ParticleSize || sy < -ParticleSize || sy > sh+ParticleSize {
					continue
				}
				vector.DrawFilledCircle(screen, float32(sx), float32(sy), radius, typeColor(int(p.Type), numTypes), true)
			}
		}
	}
}

// Layout returns the screen size
func (v *Viewer) Layout(outsideWidth, outsideHeight int) (int, int) {
	return screenWidth, screenHeight
}

func (v *Viewer) worldToScreen(wx, wy float64) (float64, float64) {
	return (wx - v.camX) * v.pxPerUnit * v.zoom, (wy - v.camY) * v.pxPerUnit * v.zoom
}

func (v *Viewer) screenToWorld(sx, sy float64) (float64, float64) {
	wx := sx/(v.pxPerUnit*v.zoom) + v.camX
	wy := sy/(v.pxPerUnit*v.zoom) + v.camY
	if v.world.Topology == plife.TopologyTorus {
		p := v.world.Wrap(plife.Vec2{X: wx, Y: wy})
		return p.X, p.Y
	}
	return wx, wy
}

// savedRules is the on-disk format for the S/L keys.
type savedRules struct {
	Matrix    [][]float64 `json:"matrix"`
	MaxRadius float64     `json:"max_radius"`
}

// saveRules writes the current rule matrix to the rules file
func (v *Viewer) saveRules() {
	table := v.sim.Rules()
	data, err := json.MarshalIndent(savedRules{
		Matrix:    table.Matrix(),
		MaxRadius: table.MaxRadius(),
	}, "", "  ")
	if err != nil {
		log.Printf("save rules: %v", err)
		return
	}
	if err := os.WriteFile(v.rulesFile, data, 0644); err != nil {
		log.Printf("save rules: %v", err)
		return
	}
	log.Printf("rules saved to %s", v.rulesFile)
}

// loadRules replaces the rule table from the rules file
func (v *Viewer) loadRules() {
	data, err := os.ReadFile(v.rulesFile)
	if err != nil {
		log.Printf("load rules: %v", err)
		return
	}
	var saved savedRules
	if err := json.Unmarshal(data, &saved); err != nil {
		log.Printf("load rules: %v", err)
		return
	}

	types := len(saved.Matrix)
	rules := make([]plife.Rule, 0, types*types)
	for from := 0; from < types; from++ {
		for to := 0; to < types; to++ {
			rules = append(rules, plife.Rule{
				Attraction: saved.Matrix[from][to],
				MaxRadius:  saved.MaxRadius,
			})
		}
	}
	table, err := plife.NewRuleTable(types, rules, nil)
	if err != nil {
		log.Printf("load rules: %v", err)
		return
	}
	if err := v.sim.SetRules(table); err != nil {
		log.Printf("load rules: %v", err)
		return
	}
	log.Printf("rules loaded from %s", v.rulesFile)
}

// typeColor returns a stable hue-based color for a particle type
func typeColor(t, numTypes int) color.RGBA {
	h := float64(t) / float64(numTypes) * 360
	r, g, b := hsvToRGB(h, 1, 1)
	return color.RGBA{uint8(r * 255), uint8(g * 255), uint8(b * 255), 255}
}

// hsvToRGB helper
func hsvToRGB(h, s, v float64) (float64, float64, float64) {
	h = math.Mod(h, 360)
	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c
	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	return r + m, g + m, b + m
}
