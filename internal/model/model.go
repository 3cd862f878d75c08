package model

import (
	"time"

	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Driver{},
	&Session{},
	&SnapshotRecord{},
	&SignalRecord{},
	&PipelinePerformance{},
}

////////////////////////
// SESSION MODELS
////////////////////////

// Driver is the user a session was recorded for
type Driver struct {
	ID        string    `json:"id" gorm:"primaryKey;size:64"`
	CreatedAt time.Time `json:"createdAt"`
	Username  string    `json:"username" gorm:"size:127;index:idx_driver_username"`
	Email     string    `json:"email" gorm:"size:255"`
}

func (*Driver) TableName() string {
	return "drivers"
}

// Session is one run of the dashboard, from startup until shutdown
type Session struct {
	ID              string     `json:"id" gorm:"primaryKey;size:36"`
	DriverID        string     `json:"driverId" gorm:"size:64;index:idx_session_driver_id"`
	Driver          Driver     `json:"driver" gorm:"foreignkey:DriverID"`
	Source          string     `json:"source" gorm:"size:32"`
	StartedAt       time.Time  `json:"startedAt" gorm:"index:idx_session_started_at"`
	EndedAt         *time.Time `json:"endedAt"`
	DurationSeconds float64    `json:"durationSeconds"`
}

func (*Session) TableName() string {
	return "sessions"
}

////////////////////////
// TIME SERIES
////////////////////////

// SnapshotRecord is one published display snapshot
type SnapshotRecord struct {
	ID           uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	Time         time.Time      `json:"time" gorm:"index:idx_snapshot_time"`
	SessionID    string         `json:"sessionId" gorm:"size:36;index:idx_snapshot_session_id"`
	Session      Session        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Seq          uint64         `json:"seq" gorm:"index:idx_snapshot_seq"`
	Source       string         `json:"source" gorm:"size:32"`
	SpeedKmh     int            `json:"speedKmh"`
	RPM          int            `json:"rpm"`
	Gear         string         `json:"gear" gorm:"size:1"`
	Acceleration float64        `json:"acceleration"`
	Braking      float64        `json:"braking"`
	TurboActive  bool           `json:"turboActive"`
	Tires        datatypes.JSON `json:"tires"`
}

func (*SnapshotRecord) TableName() string {
	return "snapshots"
}

// SignalRecord is one raw message received from the live device.
// Fields the device omitted stay NULL.
type SignalRecord struct {
	ID        uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time `json:"time" gorm:"index:idx_signal_time"`
	SessionID string    `json:"sessionId" gorm:"size:36;index:idx_signal_session_id"`
	Session   Session   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Gas       *float64  `json:"gas"`
	Brake     *float64  `json:"brake"`
	Gear      *string   `json:"gear" gorm:"size:8"`
	Motor     *int      `json:"motor"`
}

func (*SignalRecord) TableName() string {
	return "signals"
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// PipelinePerformance is the model for pipeline performance metrics
type PipelinePerformance struct {
	Time                time.Time         `json:"time" gorm:"index:idx_time"`
	SessionID           string            `json:"sessionId" gorm:"size:36;index:idx_pipelineperformance_session_id"`
	SnapshotsPublished  uint64            `json:"snapshotsPublished"`
	Clients             int               `json:"clients"`
	BufferLengths       BufferLengths     `json:"bufferLengths" gorm:"embedded;embeddedPrefix:buffer_"`
	WriteQueueLengths   WriteQueueLengths `json:"writeQueueLengths" gorm:"embedded;embeddedPrefix:writequeue_"`
	LastWriteDurationMs float32           `json:"lastWriteDurationMs"`
}

func (*PipelinePerformance) TableName() string {
	return "pipeline_performances"
}

// BufferLengths is the dispatcher buffer backlog per sink
type BufferLengths struct {
	Recorder uint16 `json:"recorder"`
	Influx   uint16 `json:"influx"`
	NATS     uint16 `json:"nats"`
}

// WriteQueueLengths is the SQL write queue backlog per table
type WriteQueueLengths struct {
	Snapshots uint16 `json:"snapshots"`
	Signals   uint16 `json:"signals"`
}
