package experiment

import (
	"fmt"

	"github.com/wcarvalho/neurorl/agent"
	env "github.com/wcarvalho/neurorl/environment"
	"github.com/wcarvalho/neurorl/experiment/tracker"
	ts "github.com/wcarvalho/neurorl/timestep"
)

// Online is an Experiment that runs an agent online only. No offline
// evaluation is performed.
type Online struct {
	env.Environment
	agent.Agent
	maxSteps     uint
	currentSteps uint
	trackers     []tracker.Tracker
	metrics      []*tracker.Metrics
}

// NewOnline creates and returns a new online experiment on a given
// environment with a given agent. The steps parameter determines how
// many timesteps the experiment is run for, and the t parameter is a
// slice of Trackers which determine what data is saved.
func NewOnline(e env.Environment, a agent.Agent, steps uint,
	t ...tracker.Tracker) *Online {
	return &Online{
		Environment: e,
		Agent:       a,
		maxSteps:    steps,
		trackers:    t,
	}
}

// Register registers a Tracker with the experiment so that data
// generated during the experiment can be tracked and saved
func (o *Online) Register(t tracker.Tracker) {
	o.trackers = append(o.trackers, t)
}

// RegisterMetrics registers a Metrics tracker which records the
// metrics the agent's learner reports after each learning step. The
// agent must implement agent.MetricsReporter for data to be tracked.
func (o *Online) RegisterMetrics(m *tracker.Metrics) {
	o.metrics = append(o.metrics, m)
}

// RunEpisode runs a single episode of the experiment, returning
// whether the experiment's timestep limit has been reached
func (o *Online) RunEpisode() (bool, error) {
	step := o.Environment.Reset()
	if err := o.Agent.ObserveFirst(step); err != nil {
		return false, fmt.Errorf("runepisode: %v", err)
	}
	o.track(step)

	for !step.Last() && o.currentSteps < o.maxSteps {
		o.currentSteps++

		// Select action, step in environment
		action := o.Agent.SelectAction(step)
		next, _, err := o.Environment.Step(action)
		if err != nil {
			return false, fmt.Errorf("runepisode: %v", err)
		}
		step = next
		o.track(step)

		// Observe the timestep and step the agent
		if err := o.Agent.Observe(action, step); err != nil {
			return false, fmt.Errorf("runepisode: %v", err)
		}
		if err := o.Agent.Step(); err != nil {
			return false, fmt.Errorf("runepisode: %v", err)
		}
		o.trackMetrics()
	}
	o.Agent.EndEpisode()

	// Return whether or not the max timestep limit has been reached
	return o.currentSteps >= o.maxSteps, nil
}

// Run runs the entire experiment for all timesteps
func (o *Online) Run() error {
	for {
		ended, err := o.RunEpisode()
		if err != nil {
			return fmt.Errorf("run: %v", err)
		}
		if ended {
			return nil
		}
	}
}

// Save saves all the data cached by the Trackers to disk
func (o *Online) Save() error {
	for _, t := range o.trackers {
		if err := t.Save(); err != nil {
			return fmt.Errorf("save: %v", err)
		}
	}
	for _, m := range o.metrics {
		if err := m.Save(); err != nil {
			return fmt.Errorf("save: %v", err)
		}
	}
	return nil
}

// track tracks the current timestep by caching its data in each
// Tracker
func (o *Online) track(t ts.TimeStep) {
	for _, tr := range o.trackers {
		tr.Track(t)
	}
}

// trackMetrics forwards the learner's reported metrics to the
// registered Metrics trackers
func (o *Online) trackMetrics() {
	if len(o.metrics) == 0 {
		return
	}
	reporter, ok := o.Agent.(agent.MetricsReporter)
	if !ok {
		return
	}
	for _, m := range o.metrics {
		m.TrackMetrics(reporter.Metrics())
	}
}
