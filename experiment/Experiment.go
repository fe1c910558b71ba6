// Package experiment implements functionality for running an
// experiment. An Experiment interacts an agent with an environment for
// a fixed number of timesteps, forwarding every timestep to its
// registered Trackers. The Save() method takes all tracked data and
// saves it to disk, usually after the experiment has been run.
package experiment

import (
	"github.com/wcarvalho/neurorl/experiment/tracker"
)

// Experiment outlines structs that can run experiments
type Experiment interface {
	// Run runs all episodes until the maximum timestep limit is
	// reached
	Run() error

	// RunEpisode runs a single episode, returning whether the
	// experiment's timestep limit has been reached
	RunEpisode() (bool, error)

	// Register adds a new Tracker to the (possibly already running)
	// experiment
	Register(t tracker.Tracker)

	// Save all tracked data to disk
	Save() error
}
