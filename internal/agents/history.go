// Agent history: a bounded record of per-round outcomes for trajectory reporting.
package agents

// DefaultHistoryWindow is the number of rounds retained per agent.
const DefaultHistoryWindow = 50

// HistoryEntry records one round of an agent's life.
type HistoryEntry struct {
	Round         int     `json:"round" db:"round"`
	Age           int     `json:"age" db:"age"`
	TaskName      string  `json:"task_name" db:"task_name"`
	Difficulty    float64 `json:"difficulty" db:"difficulty"`
	Success       bool    `json:"success" db:"success"`
	Reward        float64 `json:"reward" db:"reward"`
	Loss          float64 `json:"loss" db:"loss"`
	Confidence    float64 `json:"confidence" db:"confidence"`
	Competence    float64 `json:"competence" db:"competence"`
	Aspiration    float64 `json:"aspiration" db:"aspiration"`
	RiskTolerance float64 `json:"risk_tolerance" db:"risk_tolerance"`
	Money         float64 `json:"money" db:"money"`
}

// History is a fixed-capacity FIFO ring. When full, Push evicts the oldest entry.
type History struct {
	buf   []HistoryEntry
	start int
	n     int
}

// NewHistory creates a ring holding at most capacity entries (minimum 1).
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{buf: make([]HistoryEntry, capacity)}
}

// Push appends an entry, evicting the oldest when full.
func (h *History) Push(e HistoryEntry) {
	if h.n < len(h.buf) {
		h.buf[(h.start+h.n)%len(h.buf)] = e
		h.n++
		return
	}
	h.buf[h.start] = e
	h.start = (h.start + 1) % len(h.buf)
}

// Len returns the number of retained entries.
func (h *History) Len() int {
	if h == nil {
		return 0
	}
	return h.n
}

// Cap returns the window size.
func (h *History) Cap() int {
	if h == nil {
		return 0
	}
	return len(h.buf)
}

// Entries returns a copy of the retained entries, oldest first.
func (h *History) Entries() []HistoryEntry {
	if h == nil || h.n == 0 {
		return nil
	}
	out := make([]HistoryEntry, h.n)
	for i := 0; i < h.n; i++ {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}

// Recent returns up to count most recent entries, oldest first.
func (h *History) Recent(count int) []HistoryEntry {
	all := h.Entries()
	if count < len(all) {
		return all[len(all)-count:]
	}
	return all
}
