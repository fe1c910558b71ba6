package tracker

import (
	"encoding/gob"
	"fmt"
	"os"

	ts "github.com/wcarvalho/neurorl/timestep"
)

// EpisodeLength tracks and saves the length of each episode in an
// experiment
type EpisodeLength struct {
	currentLength  int
	episodeLengths []float64
	filename       string
}

// NewEpisodeLength creates and returns a new *EpisodeLength Tracker
func NewEpisodeLength(filename string) *EpisodeLength {
	return &EpisodeLength{filename: filename}
}

// Track counts the timesteps of the running episode, recording the
// count when the episode ends
func (e *EpisodeLength) Track(step ts.TimeStep) {
	if step.First() {
		e.currentLength = 0
		return
	}

	e.currentLength++
	if step.Last() {
		e.episodeLengths = append(e.episodeLengths, float64(e.currentLength))
		e.currentLength = 0
	}
}

// EpisodeLengths returns the lengths of the episodes finished so far
func (e *EpisodeLength) EpisodeLengths() []float64 {
	return e.episodeLengths
}

// Save saves the data tracked by the EpisodeLength Tracker to disk
func (e *EpisodeLength) Save() error {
	file, err := os.Create(e.filename)
	if err != nil {
		return fmt.Errorf("save: could not open save file: %v", err)
	}
	defer file.Close()

	en := gob.NewEncoder(file)
	if err := en.Encode(e.episodeLengths); err != nil {
		return fmt.Errorf("save: could not encode episode lengths: %v", err)
	}
	return nil
}
