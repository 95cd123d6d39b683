// Package rolling provides the per-key trailing time window the
// analytics monitors are built on.
package rolling

// Sample is one (timestamp, value) observation. Timestamps are epoch
// milliseconds and must arrive in non-decreasing order per key.
type Sample struct {
	TS    int64
	Value float64
}

// Window keeps, per key, the samples observed during the last spanMs
// milliseconds. There is no size bound beyond the time span; bursty
// input grows the buffers.
type Window struct {
	spanMs int64
	hist   map[string][]Sample
}

func NewWindow(spanMs int64) *Window {
	return &Window{
		spanMs: spanMs,
		hist:   make(map[string][]Sample),
	}
}

// SpanMs returns the configured window length.
func (w *Window) SpanMs() int64 { return w.spanMs }

// Push appends a sample for key, evicts samples older than ts-span from
// the front, and returns the retained buffer. The returned slice is the
// window's internal storage and is only valid until the next Push.
func (w *Window) Push(key string, ts int64, value float64) []Sample {
	buf := append(w.hist[key], Sample{TS: ts, Value: value})

	cut := ts - w.spanMs
	i := 0
	for i < len(buf) && buf[i].TS < cut {
		i++
	}
	if i > 0 {
		buf = append(buf[:0], buf[i:]...)
	}

	w.hist[key] = buf
	return buf
}

// Samples returns the current buffer for key without mutating it.
func (w *Window) Samples(key string) []Sample {
	return w.hist[key]
}
