package dialog

import (
	"fmt"
	"time"

	"ai_call_agent/internal/models"
)

// Snapshot 对话状态的可序列化副本，用于通话中断后的恢复
type Snapshot struct {
	Info           SessionInfo                    `json:"info"`
	ScriptID       string                         `json:"script_id"`
	State          State                          `json:"state"`
	History        []Turn                         `json:"history"`
	Criteria       map[string]Criterion           `json:"criteria"`
	Score          float64                        `json:"score"`
	Clarifications int                            `json:"clarifications"`
	Objections     int                            `json:"objections"`
	TransferReason TransferReason                 `json:"transfer_reason,omitempty"`
	PendingAsk     string                         `json:"pending_ask,omitempty"`
	BookingPrefs   *models.AppointmentPreferences `json:"booking_prefs,omitempty"`
	StartedAt      time.Time                      `json:"started_at"`
	Latencies      []time.Duration                `json:"latencies,omitempty"`
}

// Snapshot 导出当前状态
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	history := make([]Turn, len(e.history))
	copy(history, e.history)
	criteria := make(map[string]Criterion, len(e.criteria))
	for k, v := range e.criteria {
		criteria[k] = v
	}
	latencies := make([]time.Duration, len(e.latencies))
	copy(latencies, e.latencies)

	var prefs *models.AppointmentPreferences
	if !e.bookingPrefs.Empty() {
		p := e.bookingPrefs
		prefs = &p
	}

	return Snapshot{
		Info:           e.info,
		ScriptID:       e.script.ID,
		State:          e.state,
		History:        history,
		Criteria:       criteria,
		Score:          e.score,
		Clarifications: e.clarifications,
		Objections:     e.objections,
		TransferReason: e.transferReason,
		PendingAsk:     e.pendingAsk,
		BookingPrefs:   prefs,
		StartedAt:      e.startedAt,
		Latencies:      latencies,
	}
}

// Restore 由快照重建引擎，历史与评分保持不变
func Restore(snap Snapshot, script *models.Script, cfg Config) (*Engine, error) {
	if !snap.State.Valid() {
		return nil, fmt.Errorf("恢复对话失败: %w: %q", ErrUnknownState, snap.State)
	}
	e, err := NewEngine(snap.Info, script, cfg)
	if err != nil {
		return nil, err
	}

	e.state = snap.State
	e.history = append([]Turn(nil), snap.History...)
	for k, v := range snap.Criteria {
		e.criteria[k] = v
	}
	e.score = qualificationScore(e.criteriaDefs, e.criteria)
	e.clarifications = snap.Clarifications
	e.objections = snap.Objections
	e.transferReason = snap.TransferReason
	e.pendingAsk = snap.PendingAsk
	if snap.BookingPrefs != nil {
		e.bookingPrefs = *snap.BookingPrefs
	}
	e.latencies = append([]time.Duration(nil), snap.Latencies...)
	if !snap.StartedAt.IsZero() {
		e.startedAt = snap.StartedAt
	}
	return e, nil
}
