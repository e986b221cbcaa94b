package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/daniacca/plife/internal/plife"
)

// WorldBuilder provides a fluent API for building world configurations.
// Use it to describe a simulation: the population, the world topology,
// the rule matrix, and the integrator parameters.
type WorldBuilder struct {
	cfg         plife.WorldConfig
	attractions map[[2]int]float64
	radii       map[[2]int]float64
}

// NewWorld creates a new world builder with the given name.
// The name identifies the world and is used for organization purposes.
func NewWorld(name string) *WorldBuilder {
	return &WorldBuilder{
		cfg:         plife.WorldConfig{Name: name},
		attractions: make(map[[2]int]float64),
		radii:       make(map[[2]int]float64),
	}
}

// Seed sets the random seed. Zero seeds from the clock and makes the
// run non-reproducible.
func (wb *WorldBuilder) Seed(seed int64) *WorldBuilder {
	wb.cfg.Seed = seed
	return wb
}

// Particles sets the population size.
func (wb *WorldBuilder) Particles(n int) *WorldBuilder {
	wb.cfg.Particles = n
	return wb
}

// Types sets the number of particle types. Rule and RuleRadius indices
// must stay below this value.
func (wb *WorldBuilder) Types(n int) *WorldBuilder {
	wb.cfg.Types = n
	return wb
}

// Torus sets a wrapping world of the given dimensions.
func (wb *WorldBuilder) Torus(width, height float64) *WorldBuilder {
	wb.cfg.World = plife.World{Topology: plife.TopologyTorus, Width: width, Height: height}
	return wb
}

// Plane sets an unbounded planar world. Width and height still bound
// the initial placement region.
func (wb *WorldBuilder) Plane(width, height float64) *WorldBuilder {
	wb.cfg.World = plife.World{Topology: plife.TopologyPlane, Width: width, Height: height}
	return wb
}

// DT sets the fixed timestep per frame.
func (wb *WorldBuilder) DT(dt float64) *WorldBuilder {
	wb.cfg.DT = dt
	return wb
}

// FrictionHalfLife sets the time over which an unforced particle loses
// half its speed. Friction overrides it when both are set.
func (wb *WorldBuilder) FrictionHalfLife(halfLife float64) *WorldBuilder {
	wb.cfg.FrictionHalfLife = halfLife
	return wb
}

// Friction sets an explicit per-step velocity retention factor in [0,1),
// bypassing the half-life conversion.
func (wb *WorldBuilder) Friction(factor float64) *WorldBuilder {
	wb.cfg.Friction = &factor
	return wb
}

// MaxRadius sets the interaction cutoff applied to every type pair
// unless RuleRadius overrides it per pair.
func (wb *WorldBuilder) MaxRadius(radius float64) *WorldBuilder {
	wb.cfg.MaxRadius = radius
	return wb
}

// Beta sets the repulsive-core fraction of the force profile.
func (wb *WorldBuilder) Beta(beta float64) *WorldBuilder {
	wb.cfg.Beta = beta
	return wb
}

// Matrix sets the full attraction matrix at once. Rows are source
// types, columns are target types. Overrides any Rule calls.
func (wb *WorldBuilder) Matrix(matrix [][]float64) *WorldBuilder {
	wb.cfg.Matrix = matrix
	return wb
}

// Rule sets the attraction coefficient for a single (from, to) pair.
// Pairs not set default to zero, so a config built from Rule calls
// always has an explicit (non-random) matrix.
func (wb *WorldBuilder) Rule(from, to int, attraction float64) *WorldBuilder {
	wb.attractions[[2]int{from, to}] = attraction
	return wb
}

// RuleRadius overrides the interaction cutoff for a single (from, to)
// pair. Pairs not set keep the world MaxRadius.
func (wb *WorldBuilder) RuleRadius(from, to int, radius float64) *WorldBuilder {
	wb.radii[[2]int{from, to}] = radius
	return wb
}

// Placement sets the initial placement strategy ("uniform" or "perlin").
func (wb *WorldBuilder) Placement(p plife.Placement) *WorldBuilder {
	wb.cfg.Placement = p
	return wb
}

// Workers caps the parallel force fan-out; zero means one per CPU.
func (wb *WorldBuilder) Workers(n int) *WorldBuilder {
	wb.cfg.Workers = n
	return wb
}

// Build converts the builder to a WorldConfig that can be used with
// ApplyWorld or plife.NewSimulation directly.
func (wb *WorldBuilder) Build() plife.WorldConfig {
	cfg := wb.cfg

	if cfg.Matrix == nil && len(wb.attractions) > 0 {
		cfg.Matrix = squareMatrix(cfg.Types)
		for pair, attraction := range wb.attractions {
			if pair[0] < cfg.Types && pair[1] < cfg.Types {
				cfg.Matrix[pair[0]][pair[1]] = attraction
			}
		}
	}

	if cfg.Radii == nil && len(wb.radii) > 0 {
		cfg.Radii = squareMatrix(cfg.Types)
		for from := range cfg.Radii {
			for to := range cfg.Radii[from] {
				cfg.Radii[from][to] = cfg.MaxRadius
			}
		}
		for pair, radius := range wb.radii {
			if pair[0] < cfg.Types && pair[1] < cfg.Types {
				cfg.Radii[pair[0]][pair[1]] = radius
			}
		}
	}

	return cfg
}

func squareMatrix(n int) [][]float64 {
	if n <= 0 {
		return nil
	}
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	return m
}

// RulesBuilder provides a fluent API for building a rule-table update
// for a live simulation. Unlike WorldBuilder it does not touch the
// population; only the attraction matrix, radii, and force shape.
type RulesBuilder struct {
	types       int
	beta        float64
	maxRadius   float64
	attractions map[[2]int]float64
	radii       map[[2]int]float64
	matrix      [][]float64
}

// NewRules creates a new rules builder for a table over the given
// number of particle types.
func NewRules(types int) *RulesBuilder {
	return &RulesBuilder{
		types:       types,
		attractions: make(map[[2]int]float64),
		radii:       make(map[[2]int]float64),
	}
}

// Attraction sets the attraction coefficient for a (from, to) pair.
// Positive values attract, negative repel.
func (rb *RulesBuilder) Attraction(from, to int, value float64) *RulesBuilder {
	rb.attractions[[2]int{from, to}] = value
	return rb
}

// Radius overrides the interaction cutoff for a (from, to) pair.
func (rb *RulesBuilder) Radius(from, to int, radius float64) *RulesBuilder {
	rb.radii[[2]int{from, to}] = radius
	return rb
}

// Matrix sets the full attraction matrix at once, overriding any
// Attraction calls.
func (rb *RulesBuilder) Matrix(matrix [][]float64) *RulesBuilder {
	rb.matrix = matrix
	return rb
}

// Beta sets the repulsive-core fraction of the force profile.
// Zero keeps the server default.
func (rb *RulesBuilder) Beta(beta float64) *RulesBuilder {
	rb.beta = beta
	return rb
}

// MaxRadius sets the cutoff for pairs without an explicit Radius.
// Zero keeps the simulation's current cutoff.
func (rb *RulesBuilder) MaxRadius(radius float64) *RulesBuilder {
	rb.maxRadius = radius
	return rb
}

// RulesPayload is the wire format of POST /sim/{id}/rules.
type RulesPayload struct {
	Matrix    [][]float64 `json:"matrix"`
	Radii     [][]float64 `json:"radii,omitempty"`
	Beta      float64     `json:"beta,omitempty"`
	MaxRadius float64     `json:"max_radius,omitempty"`
}

// Build converts the builder to the request payload sent by SetRules.
func (rb *RulesBuilder) Build() RulesPayload {
	matrix := rb.matrix
	if matrix == nil {
		matrix = squareMatrix(rb.types)
		for pair, attraction := range rb.attractions {
			if pair[0] < rb.types && pair[1] < rb.types {
				matrix[pair[0]][pair[1]] = attraction
			}
		}
	}

	var radii [][]float64
	if len(rb.radii) > 0 {
		radii = squareMatrix(rb.types)
		for from := range radii {
			for to := range radii[from] {
				radii[from][to] = rb.maxRadius
			}
		}
		for pair, radius := range rb.radii {
			if pair[0] < rb.types && pair[1] < rb.types {
				radii[pair[0]][pair[1]] = radius
			}
		}
	}

	return RulesPayload{
		Matrix:    matrix,
		Radii:     radii,
		Beta:      rb.beta,
		MaxRadius: rb.maxRadius,
	}
}

// Client talks to a plife server over its HTTP API.
// The zero value is not usable; create one with New.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the server at baseURL
// (e.g. "http://localhost:8080").
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// NewWithHTTPClient creates a client using a caller-supplied http.Client,
// for custom timeouts or transports.
func NewWithHTTPClient(baseURL string, hc *http.Client) *Client {
	return &Client{baseURL: baseURL, http: hc}
}

// ApplyWorld creates or replaces the simulation with the given ID.
// Any running loop on a replaced simulation is stopped and its
// population rebuilt from the new config.
func (c *Client) ApplyWorld(ctx context.Context, simID string, world *WorldBuilder) error {
	return c.do(ctx, http.MethodPost, world.Build(), nil, "sim", simID, "world")
}

// ApplyWorldConfig is ApplyWorld for a ready-made WorldConfig.
func (c *Client) ApplyWorldConfig(ctx context.Context, simID string, cfg plife.WorldConfig) error {
	return c.do(ctx, http.MethodPost, cfg, nil, "sim", simID, "world")
}

// SetRules replaces the simulation's rule table. The population and
// frame counter are untouched.
func (c *Client) SetRules(ctx context.Context, simID string, rules *RulesBuilder) error {
	return c.do(ctx, http.MethodPost, rules.Build(), nil, "sim", simID, "rules")
}

// RandomizeRules re-randomizes the attraction matrix, keeping the
// per-pair radii.
func (c *Client) RandomizeRules(ctx context.Context, simID string) error {
	return c.do(ctx, http.MethodPost, nil, nil, "sim", simID, "rules")
}

// RulesInfo describes a simulation's current rule table.
type RulesInfo struct {
	Types     int         `json:"types"`
	MaxRadius float64     `json:"max_radius"`
	Matrix    [][]float64 `json:"matrix"`
}

// Rules fetches the simulation's current rule table.
func (c *Client) Rules(ctx context.Context, simID string) (RulesInfo, error) {
	var info RulesInfo
	err := c.do(ctx, http.MethodGet, nil, &info, "sim", simID, "rules")
	return info, err
}

// Step advances the simulation one frame and returns the resulting
// snapshot. Useful when the background loop is not running.
func (c *Client) Step(ctx context.Context, simID string) (plife.Snapshot, error) {
	var snapshot plife.Snapshot
	err := c.do(ctx, http.MethodPost, nil, &snapshot, "sim", simID, "step")
	return snapshot, err
}

// Start starts the background frame loop. A zero interval uses the
// server default.
func (c *Client) Start(ctx context.Context, simID string, interval time.Duration) error {
	u, err := c.join("sim", simID, "start")
	if err != nil {
		return err
	}
	if interval > 0 {
		u += "?interval=" + strconv.FormatInt(interval.Milliseconds(), 10)
	}
	return c.doURL(ctx, http.MethodPost, u, nil, nil)
}

// Stop stops the background frame loop. Stopping an idle simulation is
// a no-op.
func (c *Client) Stop(ctx context.Context, simID string) error {
	return c.do(ctx, http.MethodPost, nil, nil, "sim", simID, "stop")
}

// Reset regenerates the population at frame zero. A non-zero seed makes
// the fresh population reproducible.
func (c *Client) Reset(ctx context.Context, simID string, seed int64) error {
	u, err := c.join("sim", simID, "reset")
	if err != nil {
		return err
	}
	if seed != 0 {
		u += "?seed=" + strconv.FormatInt(seed, 10)
	}
	return c.doURL(ctx, http.MethodPost, u, nil, nil)
}

// Impulse kicks every particle toward center with the given strength.
// Negative strength pushes away instead.
func (c *Client) Impulse(ctx context.Context, simID string, center plife.Vec2, strength float64) error {
	body := map[string]any{"center": center, "strength": strength}
	return c.do(ctx, http.MethodPost, body, nil, "sim", simID, "impulse")
}

// Snapshot fetches the most recently published snapshot.
func (c *Client) Snapshot(ctx context.Context, simID string) (plife.Snapshot, error) {
	var snapshot plife.Snapshot
	err := c.do(ctx, http.MethodGet, nil, &snapshot, "sim", simID, "snapshot")
	return snapshot, err
}

// SaveSnapshot asks the server to persist the latest snapshot to disk
// and returns the file path on the server.
func (c *Client) SaveSnapshot(ctx context.Context, simID string) (string, error) {
	var resp struct {
		Status string `json:"status"`
		Path   string `json:"path"`
	}
	if err := c.do(ctx, http.MethodPost, nil, &resp, "sim", simID, "snapshot"); err != nil {
		return "", err
	}
	return resp.Path, nil
}

// SimStatus describes a simulation's loop state and timing statistics.
type SimStatus struct {
	State string          `json:"state"`
	Frame int64           `json:"frame"`
	Stats plife.LoopStats `json:"stats"`
}

// Stats fetches the simulation's loop state and timing statistics.
func (c *Client) Stats(ctx context.Context, simID string) (SimStatus, error) {
	var status SimStatus
	err := c.do(ctx, http.MethodGet, nil, &status, "sim", simID, "stats")
	return status, err
}

// ListSimulations returns the IDs of all simulations on the server.
func (c *Client) ListSimulations(ctx context.Context) ([]string, error) {
	var resp struct {
		Simulations []string `json:"simulations"`
	}
	if err := c.do(ctx, http.MethodGet, nil, &resp, "sims"); err != nil {
		return nil, err
	}
	return resp.Simulations, nil
}

// DeleteSimulation stops and removes the simulation.
func (c *Client) DeleteSimulation(ctx context.Context, simID string) error {
	return c.do(ctx, http.MethodDelete, nil, nil, "sim", simID)
}

// NotifierInfo describes a registered notifier.
type NotifierInfo struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// ListNotifiers returns the notifiers registered on the server.
func (c *Client) ListNotifiers(ctx context.Context) ([]NotifierInfo, error) {
	var resp struct {
		Notifiers []NotifierInfo `json:"notifiers"`
	}
	if err := c.do(ctx, http.MethodGet, nil, &resp, "notifiers"); err != nil {
		return nil, err
	}
	return resp.Notifiers, nil
}

// RegisterWebhook registers a webhook notifier that receives simulation
// events as JSON POSTs. Headers are added to every delivery and may be
// nil.
func (c *Client) RegisterWebhook(ctx context.Context, id, targetURL string, headers map[string]string) error {
	config := map[string]any{"url": targetURL}
	if len(headers) > 0 {
		h := make(map[string]any, len(headers))
		for k, v := range headers {
			h[k] = v
		}
		config["headers"] = h
	}
	body := map[string]any{"type": "webhook", "id": id, "config": config}
	return c.do(ctx, http.MethodPost, body, nil, "notifiers")
}

// UnregisterNotifier removes a notifier by ID.
func (c *Client) UnregisterNotifier(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, nil, nil, "notifiers", id)
}

func (c *Client) join(elems ...string) (string, error) {
	u, err := url.JoinPath(c.baseURL, elems...)
	if err != nil {
		return "", fmt.Errorf("failed to build URL: %w", err)
	}
	return u, nil
}

// do sends a request to baseURL joined with the path elements,
// JSON-encoding body (when non-nil) and decoding the response into out
// (when non-nil). Any non-200 response becomes an error carrying the
// server's message.
func (c *Client) do(ctx context.Context, method string, body, out any, elems ...string) error {
	u, err := c.join(elems...)
	if err != nil {
		return err
	}
	return c.doURL(ctx, method, u, body, out)
}

func (c *Client) doURL(ctx context.Context, method, u string, body, out any) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(msg))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
