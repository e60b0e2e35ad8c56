package world

import (
	"time"

	"citydev.io/internal/protocol"
)

// Optional loggers (may be nil). Implemented in internal/persistence/log.
type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

// TickLogEntry records everything needed to re-run one tick: the actions
// applied since the previous tick, in order, then the step itself.
type TickLogEntry struct {
	Tick    uint64           `json:"tick"`
	Date    time.Time        `json:"date"`
	Paused  bool             `json:"paused,omitempty"`
	Actions []RecordedAction `json:"actions,omitempty"`
	Digest  string           `json:"digest"`
}

type RecordedAction struct {
	ID      string                 `json:"id"`
	Request protocol.ActionRequest `json:"request"`
	Code    string                 `json:"code,omitempty"`
}

// Audit kinds.
const (
	AuditBuy             = "BUY"
	AuditSell            = "SELL"
	AuditUpgradePurchase = "UPGRADE_PURCHASE"
	AuditUpgradeComplete = "UPGRADE_COMPLETE"
	AuditRent            = "RENT"
)

// AuditEntry is one funds- or ownership-changing event.
type AuditEntry struct {
	Tick       uint64    `json:"tick"`
	Date       time.Time `json:"date"`
	Kind       string    `json:"kind"`
	ActionID   string    `json:"action_id,omitempty"`
	PlayerID   int64     `json:"player_id"`
	PropertyID int64     `json:"property_id"`
	UpgradeID  string    `json:"upgrade_id,omitempty"`
	// Amount is the signed change to the player's funds.
	Amount float64 `json:"amount"`
	Funds  float64 `json:"funds"`
}

func (w *World) audit(e AuditEntry) {
	if w.auditLogger == nil {
		return
	}
	if err := w.auditLogger.WriteAudit(e); err != nil {
		w.logf("audit log: %v", err)
	}
}

func (w *World) logf(format string, args ...any) {
	if w.logger != nil {
		w.logger.Printf(format, args...)
	}
}
