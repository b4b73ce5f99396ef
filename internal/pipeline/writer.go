package pipeline

import "net/http"

// decoratingWriter runs onCommit exactly once, right before the status line
// goes out, so response headers are finalized on every path.
type decoratingWriter struct {
	http.ResponseWriter
	onCommit  func()
	committed bool
	status    int
}

func newDecoratingWriter(w http.ResponseWriter) *decoratingWriter {
	return &decoratingWriter{ResponseWriter: w}
}

func (w *decoratingWriter) commit(code int) {
	if w.committed {
		return
	}
	w.committed = true
	w.status = code
	if w.onCommit != nil {
		w.onCommit()
	}
}

func (w *decoratingWriter) WriteHeader(code int) {
	// Informational responses other than 101 precede the real header.
	if code >= 100 && code < 200 && code != http.StatusSwitchingProtocols {
		w.ResponseWriter.WriteHeader(code)
		return
	}
	if w.committed {
		return
	}
	w.commit(code)
	w.ResponseWriter.WriteHeader(code)
}

func (w *decoratingWriter) Write(b []byte) (int, error) {
	if !w.committed {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// Flush implements http.Flusher.
func (w *decoratingWriter) Flush() {
	if !w.committed {
		w.WriteHeader(http.StatusOK)
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *decoratingWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
