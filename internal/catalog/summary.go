package catalog

import "time"

// Summary counts results by status for one run.
type Summary struct {
	Total     int           `json:"total"`
	Valid     int           `json:"valid"`
	Invalid   int           `json:"invalid"`
	Timeout   int           `json:"timeout"`
	Error     int           `json:"error"`
	Elapsed   time.Duration `json:"-"`
	ElapsedMs int64         `json:"elapsed_ms"`
}

// Summarize counts results by status.
func Summarize(results []CheckResult, elapsed time.Duration) Summary {
	s := Summary{Elapsed: elapsed, ElapsedMs: elapsed.Milliseconds()}
	for _, r := range results {
		s.Add(r.Status)
	}
	return s
}

// Add counts one result.
func (s *Summary) Add(st Status) {
	s.Total++
	switch st {
	case StatusValid:
		s.Valid++
	case StatusInvalid:
		s.Invalid++
	case StatusTimeout:
		s.Timeout++
	default:
		s.Error++
	}
}

// Count returns the number of results with status st.
func (s Summary) Count(st Status) int {
	switch st {
	case StatusValid:
		return s.Valid
	case StatusInvalid:
		return s.Invalid
	case StatusTimeout:
		return s.Timeout
	case StatusError:
		return s.Error
	}
	return 0
}

// Percent returns the share of results with status st, 0..100.
func (s Summary) Percent(st Status) float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Count(st)) * 100 / float64(s.Total)
}
