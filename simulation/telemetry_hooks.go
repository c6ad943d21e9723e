package simulation

// flushTelemetry emits window stats when the window is full, or when final
// is set and the window holds any iterations. A zero window emits nothing.
func (s *Simulation) flushTelemetry(final bool) {
	if final {
		if !s.collector.Pending(s.iter) {
			return
		}
	} else if !s.collector.ShouldFlush(s.iter) {
		return
	}

	stats := s.collector.Flush(s.iter, s.particles, s.search.MeanCandidates())
	perfStats := s.perfCollector.Stats()

	if s.statsCallback != nil {
		s.statsCallback(stats)
	}

	if s.logStats {
		stats.LogStats(s.logger)
		perfStats.LogStats(s.logger)
	}

	if s.outputManager != nil {
		if err := s.outputManager.WriteTelemetry(stats); err != nil {
			s.logger.Error("failed to write telemetry", "error", err)
		}
		if err := s.outputManager.WritePerf(perfStats, stats.WindowEndIter); err != nil {
			s.logger.Error("failed to write perf", "error", err)
		}
	}

	if stats.OutOfBounds > 0 {
		s.logger.Warn("particles clamped to boundary cells",
			"window_end", stats.WindowEndIter,
			"count", stats.OutOfBounds,
		)
	}
	if stats.DegenerateNormals > 0 {
		s.logger.Debug("zeroed surface forces", "window_end", stats.WindowEndIter, "count", stats.DegenerateNormals)
	}
}
