package pool

import (
	"fetchq/internal/usecase"
	"fmt"
	"strings"
)

type WorkerStats struct {
	Name      string
	Processed int
}

// Stats returns how many tasks each worker took off the queue.
func (p *Pool) Stats() []WorkerStats {
	p.mu.Lock()
	ws := p.workerSt
	p.mu.Unlock()

	out := make([]WorkerStats, len(ws))
	for i, w := range ws {
		out[i] = WorkerStats{Name: w.name, Processed: int(w.processed.Load())}
	}
	return out
}

type Summary struct {
	Total             int `json:"total"`
	Popped            int `json:"popped"`
	Completed         int `json:"completed"`
	SoftFailures      int `json:"soft_failures"`
	RetriesExhausted  int `json:"retries_exhausted"`
	TransportFailures int `json:"transport_failures"`
	CallbackFailures  int `json:"callback_failures"`
	Fatal             int `json:"fatal"`
	Skipped           int `json:"skipped"`
}

// Dropped is every popped task that did not reach its callback.
func (s Summary) Dropped() int {
	return s.SoftFailures + s.RetriesExhausted + s.TransportFailures
}

func (p *Pool) Summary() Summary {
	p.mu.Lock()
	total := p.total
	p.mu.Unlock()

	get := func(o usecase.Outcome) int { return int(p.outcomes[o].Load()) }
	return Summary{
		Total:             total,
		Popped:            int(p.popped.Load()),
		Completed:         get(usecase.OutcomeCompleted),
		SoftFailures:      get(usecase.OutcomeSoftFailure),
		RetriesExhausted:  get(usecase.OutcomeRetriesExhausted),
		TransportFailures: get(usecase.OutcomeTransportFailure),
		CallbackFailures:  get(usecase.OutcomeCallbackFailed),
		Fatal:             get(usecase.OutcomeFatal),
		Skipped:           get(usecase.OutcomeSkipped),
	}
}

// formatWorkerLines renders counts ten workers per line: "TASK-00    12   9 ...".
func formatWorkerLines(stats []WorkerStats) []string {
	var lines []string
	for i := 0; i < len(stats); i += 10 {
		var sb strings.Builder
		sb.WriteString(stats[i].Name)
		sb.WriteString(" ")
		for j := i; j < min(i+10, len(stats)); j++ {
			fmt.Fprintf(&sb, "%4d", stats[j].Processed)
		}
		lines = append(lines, sb.String())
	}
	return lines
}

func (p *Pool) logSummary() {
	for _, line := range formatWorkerLines(p.Stats()) {
		p.log.Info().Msg(line)
	}
	s := p.Summary()
	p.log.Info().
		Int("total", s.Total).
		Int("completed", s.Completed).
		Int("dropped", s.Dropped()).
		Int("callback_failures", s.CallbackFailures).
		Int("fatal", s.Fatal).
		Msg("pool finished")
}
