package tracker

import (
	"encoding/gob"
	"fmt"
	"os"
)

// Metrics tracks the diagnostic metrics reported by a learner over the
// course of an experiment, one series per metric name.
type Metrics struct {
	series   map[string][]float64
	filename string
}

// NewMetrics creates and returns a new *Metrics tracker
func NewMetrics(filename string) *Metrics {
	return &Metrics{
		series:   make(map[string][]float64),
		filename: filename,
	}
}

// TrackMetrics appends one reported metrics mapping to the tracked
// series. A nil mapping, reported by learners before their first
// update, is ignored.
func (m *Metrics) TrackMetrics(metrics map[string]float64) {
	for name, value := range metrics {
		m.series[name] = append(m.series[name], value)
	}
}

// Series returns the tracked series of a metric
func (m *Metrics) Series(name string) []float64 {
	return m.series[name]
}

// Save saves the tracked metric series to disk
func (m *Metrics) Save() error {
	file, err := os.Create(m.filename)
	if err != nil {
		return fmt.Errorf("save: could not open save file: %v", err)
	}
	defer file.Close()

	en := gob.NewEncoder(file)
	if err := en.Encode(m.series); err != nil {
		return fmt.Errorf("save: could not encode metrics: %v", err)
	}
	return nil
}

// LoadMetrics loads and returns the series saved by a Metrics tracker
func LoadMetrics(filename string) (map[string][]float64, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("loadmetrics: could not open data file: %v",
			err)
	}
	defer file.Close()

	dec := gob.NewDecoder(file)
	var series map[string][]float64
	if err := dec.Decode(&series); err != nil {
		return nil, fmt.Errorf("loadmetrics: could not decode data: %v", err)
	}

	return series, nil
}
