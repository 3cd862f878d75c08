package monitor

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rcdash/telemetry/internal/model"
	"github.com/rcdash/telemetry/internal/worker"

	"gorm.io/gorm"
)

// DefaultInterval is used when Dependencies.Interval is zero.
const DefaultInterval = time.Second

// QueueReporter exposes the dispatcher's buffered sink backlog.
type QueueReporter interface {
	QueueLengths() map[string]int
}

// Dependencies holds all dependencies for the monitor service. Every
// source of numbers is optional.
type Dependencies struct {
	DB            *gorm.DB
	Logger        *slog.Logger
	WorkerManager *worker.Manager
	Queues        QueueReporter
	Clients       func() int
	Published     func() uint64
	SessionID     string
	StatusFile    string
	Interval      time.Duration
}

// Status is what the status file holds.
type Status struct {
	Time                time.Time               `json:"time"`
	SessionID           string                  `json:"sessionId"`
	SnapshotsPublished  uint64                  `json:"snapshotsPublished"`
	SnapshotsRecorded   uint64                  `json:"snapshotsRecorded"`
	SignalsRecorded     uint64                  `json:"signalsRecorded"`
	RecordFailures      uint64                  `json:"recordFailures"`
	Clients             int                     `json:"clients"`
	SinkQueues          map[string]int          `json:"sinkQueues"`
	WriteQueues         model.WriteQueueLengths `json:"writeQueues"`
	LastWriteDurationMs float32                 `json:"lastWriteDurationMs"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

func clampUint16(v int) uint16 {
	return uint16(max(0, min(v, math.MaxUint16)))
}

// GetProgramStatus collects the current pipeline numbers.
func (s *Service) GetProgramStatus() (Status, model.PipelinePerformance) {
	status := Status{
		Time:       time.Now(),
		SessionID:  s.deps.SessionID,
		SinkQueues: map[string]int{},
	}

	if s.deps.Published != nil {
		status.SnapshotsPublished = s.deps.Published()
	}
	if s.deps.Clients != nil {
		status.Clients = s.deps.Clients()
	}

	buffers := model.BufferLengths{}
	if s.deps.Queues != nil {
		status.SinkQueues = s.deps.Queues.QueueLengths()
		for key, n := range status.SinkQueues {
			_, name, _ := strings.Cut(key, "/")
			switch name {
			case worker.SinkName:
				buffers.Recorder = clampUint16(int(buffers.Recorder) + n)
			case "influx":
				buffers.Influx = clampUint16(int(buffers.Influx) + n)
			case "nats":
				buffers.NATS = clampUint16(int(buffers.NATS) + n)
			}
		}
	}

	if wm := s.deps.WorkerManager; wm != nil {
		status.SnapshotsRecorded, status.SignalsRecorded, status.RecordFailures = wm.Counters()
		stats := wm.BackendStats()
		status.WriteQueues = model.WriteQueueLengths{
			Snapshots: clampUint16(stats.PendingSnapshots),
			Signals:   clampUint16(stats.PendingSignals),
		}
		status.LastWriteDurationMs = float32(stats.LastWriteDuration.Microseconds()) / 1000
	}

	perf := model.PipelinePerformance{
		Time:                status.Time,
		SessionID:           status.SessionID,
		SnapshotsPublished:  status.SnapshotsPublished,
		Clients:             status.Clients,
		BufferLengths:       buffers,
		WriteQueueLengths:   status.WriteQueues,
		LastWriteDurationMs: status.LastWriteDurationMs,
	}
	return status, perf
}

// writeStatusFile replaces the status file with status.
func (s *Service) writeStatusFile(status Status) error {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.deps.StatusFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.deps.StatusFile)
}

// Tick writes one status file and performance row.
func (s *Service) Tick() error {
	status, perf := s.GetProgramStatus()

	var errs []error
	if s.deps.StatusFile != "" {
		if err := s.writeStatusFile(status); err != nil {
			errs = append(errs, fmt.Errorf("status file: %w", err))
		}
	}
	if s.deps.DB != nil && s.deps.SessionID != "" {
		if err := s.deps.DB.Create(&perf).Error; err != nil {
			errs = append(errs, fmt.Errorf("performance row: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if s.deps.StatusFile != "" {
		if err := os.MkdirAll(filepath.Dir(s.deps.StatusFile), 0755); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("failed to create status directory: %w", err)
		}
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		logger := s.deps.Logger
		logger.Debug("Starting status monitor", "interval", s.deps.Interval, "file", s.deps.StatusFile)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := s.Tick(); err != nil {
					logger.Error("Error writing status", "error", err)
				}
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	stop, done := s.stopChan, s.done
	s.isRunning = false
	s.mu.Unlock()

	close(stop)
	<-done
}
