package core

// BoundedHistory is a fixed-capacity FIFO window over conversation messages.
// It is owned by the orchestrator for the duration of one round and is not
// safe for concurrent use.
//
// Contract:
//   - Len never exceeds the cap after any number of appends
//   - Eviction is FIFO
//   - An assistant tool-call message and the tool-result message(s) answering
//     it evict together or not at all; a model must never see a dangling
//     tool call or an orphaned tool result.
type BoundedHistory struct {
	cap      int
	messages []Message
}

// DefaultHistoryCap is the window size used when a non-positive cap is given.
const DefaultHistoryCap = 20

// NewBoundedHistory creates an empty history with the given cap.
func NewBoundedHistory(cap int) *BoundedHistory {
	if cap <= 0 {
		cap = DefaultHistoryCap
	}
	return &BoundedHistory{cap: cap}
}

// NewBoundedHistoryFrom seeds a history with existing messages, evicting from
// the front if they already exceed the cap.
func NewBoundedHistoryFrom(cap int, msgs []Message) *BoundedHistory {
	h := NewBoundedHistory(cap)
	for _, m := range msgs {
		h.Append(m)
	}
	return h
}

// Append adds a message, evicting from the front until the window fits.
func (h *BoundedHistory) Append(msg Message) {
	h.messages = append(h.messages, msg)
	for len(h.messages) > h.cap {
		h.evictFront()
	}
}

// AppendExchange adds an assistant tool-call message and its tool-result
// message as a unit. Both land in the window together; eviction later removes
// them together.
func (h *BoundedHistory) AppendExchange(call, result Message) {
	h.messages = append(h.messages, call, result)
	for len(h.messages) > h.cap {
		h.evictFront()
	}
}

// evictFront removes the oldest message. When the oldest message is an
// assistant tool-call message, the tool-result messages answering its call
// IDs are removed with it.
func (h *BoundedHistory) evictFront() {
	if len(h.messages) == 0 {
		return
	}
	head := h.messages[0]
	h.messages = h.messages[1:]
	if len(head.ToolCalls) == 0 {
		return
	}
	ids := make(map[string]bool, len(head.ToolCalls))
	for _, c := range head.ToolCalls {
		ids[c.ID] = true
	}
	kept := h.messages[:0]
	for _, m := range h.messages {
		if m.Role == RoleTool && answersAny(m, ids) {
			continue
		}
		kept = append(kept, m)
	}
	h.messages = kept
}

func answersAny(m Message, ids map[string]bool) bool {
	for _, r := range m.ToolResults {
		if ids[r.ToolCallID] {
			return true
		}
	}
	return false
}

// Len returns the current number of messages in the window.
func (h *BoundedHistory) Len() int { return len(h.messages) }

// Cap returns the window capacity.
func (h *BoundedHistory) Cap() int { return h.cap }

// Messages returns a defensive copy of the window in order.
func (h *BoundedHistory) Messages() []Message {
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}
