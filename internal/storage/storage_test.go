// internal/storage/storage_test.go
package storage_test

import (
	"testing"

	"github.com/rcdash/telemetry/internal/storage"
	"github.com/rcdash/telemetry/pkg/core"
	"github.com/stretchr/testify/assert"
)

var _ storage.Backend = storage.Nop{}

func TestNopAcceptsEverything(t *testing.T) {
	var b storage.Backend = storage.Nop{}

	assert.NoError(t, b.Init())
	assert.NoError(t, b.StartSession(&core.Session{}))
	assert.NoError(t, b.RecordSnapshot(&core.Snapshot{}))
	assert.NoError(t, b.RecordSignal(&core.RawSignal{}))
	assert.NoError(t, b.EndSession(&core.Session{}))
	assert.NoError(t, b.Close())

	_, ok := b.(storage.StatsReporter)
	assert.False(t, ok)
}
