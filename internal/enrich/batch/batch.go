// Package batch tracks per-item outcomes of a bulk enrichment without aborting it.
package batch

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shpitdev/contact-enricher/internal/enrich"
)

// ErrBelowThreshold is wrapped by Summary.Err when too many items failed.
var ErrBelowThreshold = errors.New("batch success rate below threshold")

// Failure is one item that produced no usable result.
type Failure struct {
	Index   int            `json:"index"`
	Request enrich.Request `json:"request"`
	Error   string         `json:"error"`
}

// Summary is the per-item breakdown of a batch.
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	// Results is index-aligned with the input; failed items may still carry a partial result.
	Results  []enrich.Result `json:"results"`
	Failures []Failure       `json:"failures"`
}

// SuccessRate is Succeeded/Total, or 1 for an empty batch.
func (s Summary) SuccessRate() float64 {
	if s.Total == 0 {
		return 1
	}
	return float64(s.Succeeded) / float64(s.Total)
}

// Err returns a single error only when minSuccessRate > 0 and the batch fell below it.
func (s Summary) Err(minSuccessRate float64) error {
	if minSuccessRate <= 0 || s.SuccessRate() >= minSuccessRate {
		return nil
	}
	err := fmt.Errorf("%w: %d/%d succeeded (%.0f%% < %.0f%%)",
		ErrBelowThreshold, s.Succeeded, s.Total, 100*s.SuccessRate(), 100*minSuccessRate)
	if len(s.Failures) > 0 {
		err = fmt.Errorf("%w; first failure: item %d: %s", err, s.Failures[0].Index, s.Failures[0].Error)
	}
	return err
}

// Collector accumulates outcomes from concurrent workers.
type Collector struct {
	mu        sync.Mutex
	results   []enrich.Result
	failures  []Failure
	succeeded int
}

func NewCollector(total int) *Collector {
	return &Collector{results: make([]enrich.Result, total)}
}

// Record files one item's outcome. An item with no error still fails when no source
// produced anything for it.
func (c *Collector) Record(index int, req enrich.Request, res enrich.Result, err error) {
	if err == nil && len(res.SourcesUsed) == 0 {
		err = errors.New("no source returned contact data")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if index >= 0 && index < len(c.results) {
		c.results[index] = res
	}
	if err != nil {
		c.failures = append(c.failures, Failure{Index: index, Request: req, Error: err.Error()})
		return
	}
	c.succeeded++
}

func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	failures := append([]Failure(nil), c.failures...)
	sort.Slice(failures, func(i, j int) bool { return failures[i].Index < failures[j].Index })
	return Summary{
		Total:     len(c.results),
		Succeeded: c.succeeded,
		Failed:    len(failures),
		Results:   append([]enrich.Result(nil), c.results...),
		Failures:  failures,
	}
}
