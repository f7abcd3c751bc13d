package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFieldConstructors(t *testing.T) {
	t.Parallel()

	p := Present(42)
	assert.True(t, p.OK())
	assert.Equal(t, 42, p.Value)
	assert.NoError(t, p.Err)

	m := Missing[string]()
	assert.False(t, m.OK())
	assert.Equal(t, FieldMissing, m.Status)
	assert.Empty(t, m.Value)

	err := errors.New("bad price")
	bad := Malformed[float64](err)
	assert.False(t, bad.OK())
	assert.Equal(t, FieldMalformed, bad.Status)
	assert.Equal(t, err, bad.Err)
}

func TestFieldZeroValueIsMissing(t *testing.T) {
	t.Parallel()

	var f Field[int]
	assert.Equal(t, FieldMissing, f.Status)
}

func TestStageRun_Duration(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	st := StageRun{StartedAt: start}
	assert.Zero(t, st.Duration())

	end := start.Add(90 * time.Second)
	st.FinishedAt = &end
	assert.Equal(t, 90*time.Second, st.Duration())
}
