package tracing

// applyContentPolicy strips input/output/metadata fields per the project's
// content-storage policy, applied before enqueue so sensitive bytes never
// touch disk.
func applyContentPolicy(tr *Trace, policy ContentStoragePolicy) {
	switch policy {
	case PolicyFull:
		return
	case PolicyMetadataOnly:
		tr.Input = nil
		tr.Output = nil
		for i := range tr.Spans {
			tr.Spans[i].Input = nil
			tr.Spans[i].Output = nil
		}
	default: // PolicyNone or unrecognized
		tr.Input = nil
		tr.Output = nil
		tr.Metadata = nil
		for i := range tr.Spans {
			tr.Spans[i].Input = nil
			tr.Spans[i].Output = nil
			tr.Spans[i].Metadata = nil
		}
	}
}
