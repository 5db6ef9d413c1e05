package pipeline

// Stats is the pipeline's aggregate counter snapshot. Sampling drops happen
// before counting, so TotalLogs reflects only entries that reached the queue
// stage.
type Stats struct {
	TotalLogs  int64            `json:"total_logs"`
	ByLevel    map[string]int64 `json:"by_level"`
	ByCategory map[string]int64 `json:"by_category"`
	BySource   map[string]int64 `json:"by_source"`
	ErrorRate  float64          `json:"error_rate"`

	QueueDepth           int   `json:"queue_depth"`
	EvictedEntries       int64 `json:"evicted_entries"`
	FilteredEntries      int64 `json:"filtered_entries"`
	SuccessfulDeliveries int64 `json:"successful_deliveries"`
	FailedDeliveries     int64 `json:"failed_deliveries"`
}

func newStats() Stats {
	return Stats{
		ByLevel:    make(map[string]int64),
		ByCategory: make(map[string]int64),
		BySource:   make(map[string]int64),
	}
}

func (s *Stats) snapshot() Stats {
	cp := *s
	cp.ByLevel = copyCounts(s.ByLevel)
	cp.ByCategory = copyCounts(s.ByCategory)
	cp.BySource = copyCounts(s.BySource)
	return cp
}

func copyCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
