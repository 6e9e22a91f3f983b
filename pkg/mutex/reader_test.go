package mutex

import (
	"context"
	"errors"
	"testing"
	tm "time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lockBody(t *testing.T, session string) []byte {
	t.Helper()
	body, err := identity(session).Marshal()
	require.NoError(t, err)
	return body
}

func TestReaderAbsent(t *testing.T) {
	f := newFixture()
	r := NewReader(f.store, lockKey, 900*tm.Second, f.clock, f.log)

	state, err := r.Read(context.Background())
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestReaderHeld(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r := NewReader(f.store, lockKey, 900*tm.Second, f.clock, f.log)

	require.NoError(t, f.store.PutAt(ctx, lockKey, lockBody(t, "A"), t0))
	f.clock.Advance(100 * tm.Second)

	state, err := r.Read(ctx)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, identity("A"), state.Identity)
	assert.Equal(t, 800*tm.Second, state.Remaining)
	assert.Equal(t, t0, state.LastModified)
}

// TestReaderExpiry tests that an old lock is absent whatever its body
func TestReaderExpiry(t *testing.T) {
	for name, body := range map[string][]byte{
		"valid":   lockBody(t, "A"),
		"corrupt": []byte("{not json"),
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			ctx := context.Background()
			r := NewReader(f.store, lockKey, 900*tm.Second, f.clock, f.log)

			require.NoError(t, f.store.PutAt(ctx, lockKey, body, t0))

			f.clock.Advance(899 * tm.Second)
			state, err := r.Read(ctx)
			require.NoError(t, err)
			if name == "valid" {
				require.NotNil(t, state)
				assert.Equal(t, tm.Second, state.Remaining)
			}

			// remaining hits zero exactly at the timeout
			f.clock.Advance(tm.Second)
			state, err = r.Read(ctx)
			require.NoError(t, err)
			assert.Nil(t, state)
		})
	}
}

// TestReaderCorruptLock tests that unparsable bodies read as absent
func TestReaderCorruptLock(t *testing.T) {
	bodies := [][]byte{
		[]byte("garbage"),
		[]byte(`{"farmId":"f"}`),
		[]byte(`{"farmId":"f","queueId":"q","fleetId":"fl","jobId":"j","sessionId":"s","workerId":"w","extra":1}`),
		nil,
	}

	for _, body := range bodies {
		f := newFixture()
		ctx := context.Background()
		r := NewReader(f.store, lockKey, 900*tm.Second, f.clock, f.log)

		require.NoError(t, f.store.PutAt(ctx, lockKey, body, t0))

		state, err := r.Read(ctx)
		require.NoError(t, err)
		assert.Nil(t, state, string(body))
		assert.Equal(t, 1, f.logs.FilterMessage("ignoring lock object with invalid body").Len())
	}
}

// TestReaderWithTimeout tests the shortened exit window
func TestReaderWithTimeout(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r := NewReader(f.store, lockKey, 900*tm.Second, f.clock, f.log)
	require.NoError(t, f.store.PutAt(ctx, lockKey, lockBody(t, "A"), t0))

	f.clock.Advance(889 * tm.Second)
	state, err := r.ReadWithTimeout(ctx, 890*tm.Second)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, tm.Second, state.Remaining)

	f.clock.Advance(tm.Second)
	state, err = r.ReadWithTimeout(ctx, 890*tm.Second)
	require.NoError(t, err)
	assert.Nil(t, state)

	// the full window still sees it
	state, err = r.Read(ctx)
	require.NoError(t, err)
	assert.NotNil(t, state)
}

// TestReaderStoreFault tests that errors other than not found are returned
func TestReaderStoreFault(t *testing.T) {
	f := newFixture()
	boom := errors.New("access denied")
	r := NewReader(&faultyStore{Store: f.store, getErr: boom}, lockKey, 900*tm.Second, f.clock, nil)

	state, err := r.Read(context.Background())
	assert.Nil(t, state)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), lockKey)
}
