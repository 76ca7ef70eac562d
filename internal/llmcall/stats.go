package llmcall

import "sort"

// Stats summarizes a set of calls.
type Stats struct {
	// Basic counts
	Count        int `json:"count"`
	SuccessCount int `json:"success_count"`
	ErrorCount   int `json:"error_count"`

	// Latency percentiles (milliseconds)
	LatencyP50 float64 `json:"latency_p50_ms"`
	LatencyP95 float64 `json:"latency_p95_ms"`
	LatencyP99 float64 `json:"latency_p99_ms"`
	LatencyAvg float64 `json:"latency_avg_ms"`
	LatencyMin float64 `json:"latency_min_ms"`
	LatencyMax float64 `json:"latency_max_ms"`

	// Token stats
	TotalOutputTokens int     `json:"total_output_tokens"`
	AvgOutputTokens   float64 `json:"avg_output_tokens"`

	// Calls per method and per finish reason
	ByMethod       map[string]int `json:"by_method"`
	ByFinishReason map[string]int `json:"by_finish_reason,omitempty"`
}

// Summarize computes Stats over calls.
func Summarize(calls []Call) *Stats {
	stats := &Stats{
		Count:          len(calls),
		ByMethod:       make(map[string]int),
		ByFinishReason: make(map[string]int),
	}
	if len(calls) == 0 {
		return stats
	}

	var latencies []float64
	for _, c := range calls {
		if c.Success {
			stats.SuccessCount++
		} else {
			stats.ErrorCount++
		}
		stats.TotalOutputTokens += c.OutputTokens
		stats.ByMethod[c.Method]++
		if c.FinishReason != "" {
			stats.ByFinishReason[c.FinishReason]++
		}
		if c.LatencyMs > 0 {
			latencies = append(latencies, float64(c.LatencyMs))
		}
	}
	stats.AvgOutputTokens = float64(stats.TotalOutputTokens) / float64(stats.Count)

	if len(latencies) > 0 {
		sort.Float64s(latencies)
		stats.LatencyMin = latencies[0]
		stats.LatencyMax = latencies[len(latencies)-1]

		var sum float64
		for _, l := range latencies {
			sum += l
		}
		stats.LatencyAvg = sum / float64(len(latencies))

		stats.LatencyP50 = percentile(latencies, 50)
		stats.LatencyP95 = percentile(latencies, 95)
		stats.LatencyP99 = percentile(latencies, 99)
	}

	return stats
}

// percentile interpolates the p-th percentile of sorted.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	idx := (p / 100.0) * float64(len(sorted)-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	weight := idx - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}
