package gormstorage

import (
	"errors"
	"fmt"

	"github.com/rcdash/telemetry/internal/model"
	"github.com/rcdash/telemetry/internal/model/convert"
	"github.com/rcdash/telemetry/pkg/core"
	"gorm.io/gorm"
)

// ErrSessionNotFound is returned by LoadSession for an unknown id.
var ErrSessionNotFound = errors.New("session not found")

// Recording is a stored session with its time series, in recording order.
type Recording struct {
	Session   core.Session
	Snapshots []core.Snapshot
	Signals   []core.RawSignal
}

// ListSessions returns every recorded session, newest first.
func ListSessions(db *gorm.DB) ([]core.Session, error) {
	var rows []model.Session
	if err := db.Preload("Driver").Order("started_at desc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	out := make([]core.Session, 0, len(rows))
	for _, r := range rows {
		s, err := convert.SessionToCore(r)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// LoadSession reads one session and all of its snapshots and signals.
func LoadSession(db *gorm.DB, id string) (*Recording, error) {
	var row model.Session
	err := db.Preload("Driver").First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}

	session, err := convert.SessionToCore(row)
	if err != nil {
		return nil, err
	}
	rec := &Recording{Session: session}

	var snapshots []model.SnapshotRecord
	if err := db.Where("session_id = ?", id).Order("seq asc, id asc").Find(&snapshots).Error; err != nil {
		return nil, fmt.Errorf("failed to load snapshots: %w", err)
	}
	rec.Snapshots = make([]core.Snapshot, 0, len(snapshots))
	for _, r := range snapshots {
		s, err := convert.SnapshotToCore(r)
		if err != nil {
			return nil, err
		}
		rec.Snapshots = append(rec.Snapshots, s)
	}

	var signals []model.SignalRecord
	if err := db.Where("session_id = ?", id).Order("time asc, id asc").Find(&signals).Error; err != nil {
		return nil, fmt.Errorf("failed to load signals: %w", err)
	}
	rec.Signals = make([]core.RawSignal, 0, len(signals))
	for _, r := range signals {
		rec.Signals = append(rec.Signals, convert.SignalToCore(r))
	}

	return rec, nil
}
