package syncdir

import (
	"os"
	"testing"

	"github.com/cuemby/noteforge/pkg/fsx"
	"github.com/cuemby/noteforge/pkg/ncerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureLayoutCreatesSupersetTree(t *testing.T) {
	fake := fsx.NewFake()
	d := New(fake, "/sd")
	require.NoError(t, fake.Mkdir("/sd"))
	require.NoError(t, d.EnsureLayout())

	for _, p := range []string{
		"/sd/notes", "/sd/folders/updates", "/sd/folders/meta",
		"/sd/activity", "/sd/deletion", "/sd/profiles", "/sd/media",
	} {
		assert.True(t, fake.Exists(p), p)
	}
}

func TestInitializeUUIDGeneratesThenReconciles(t *testing.T) {
	fake := fsx.NewFake()
	require.NoError(t, fake.Mkdir("/sd"))
	d := New(fake, "/sd")

	id1, err := d.InitializeUUID()
	require.NoError(t, err)
	assert.NotEmpty(t, id1)

	// A second instance reads back the same value rather than
	// generating its own.
	d2 := New(fake, "/sd")
	id2, err := d2.InitializeUUID()
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestEnsureMarkerDoesNotOverwriteExisting(t *testing.T) {
	fake := fsx.NewFake()
	require.NoError(t, fake.Mkdir("/sd"))
	d := New(fake, "/sd")

	require.NoError(t, d.EnsureMarker(TypeProd))
	require.NoError(t, d.EnsureMarker(TypeDev)) // must not overwrite

	got, ok, err := d.ReadMarker()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, TypeProd, got)
}

func TestAcquireLockRejectsWhenHeldByLiveProcess(t *testing.T) {
	fake := fsx.NewFake()
	require.NoError(t, fake.Mkdir("/sd"))
	d := New(fake, "/sd")

	require.NoError(t, d.AcquireLock())

	d2 := New(fake, "/sd")
	err := d2.AcquireLock()
	assert.True(t, ncerr.OfKind(err, ncerr.KindLockHeld))
}

func TestAcquireLockReclaimsStaleLock(t *testing.T) {
	fake := fsx.NewFake()
	require.NoError(t, fake.Mkdir("/sd"))
	d := New(fake, "/sd")

	// A pid that almost certainly isn't alive.
	require.NoError(t, fake.WriteFile("/sd/profile.lock", []byte(`{"pid":999999,"timestamp":1}`)))

	require.NoError(t, d.AcquireLock())
	buf, err := fake.ReadFile("/sd/profile.lock")
	require.NoError(t, err)
	assert.Contains(t, string(buf), "\"pid\":")
}

func TestReleaseLockRemovesFile(t *testing.T) {
	fake := fsx.NewFake()
	require.NoError(t, fake.Mkdir("/sd"))
	d := New(fake, "/sd")
	require.NoError(t, d.AcquireLock())
	require.NoError(t, d.ReleaseLock())
	assert.False(t, fake.Exists("/sd/profile.lock"))
}

func TestProbeLockReportsAbsentHeldAndStale(t *testing.T) {
	fake := fsx.NewFake()
	require.NoError(t, fake.Mkdir("/sd"))
	d := New(fake, "/sd")

	status, err := d.ProbeLock()
	require.NoError(t, err)
	assert.False(t, status.Exists)

	require.NoError(t, d.AcquireLock())
	status, err = d.ProbeLock()
	require.NoError(t, err)
	assert.True(t, status.Exists)
	assert.True(t, status.Alive)
	assert.False(t, status.Stale)
	assert.Equal(t, os.Getpid(), status.PID)

	require.NoError(t, fake.WriteFile("/sd/profile.lock", []byte(`{"pid":999999,"timestamp":1}`)))
	status, err = d.ProbeLock()
	require.NoError(t, err)
	assert.True(t, status.Exists)
	assert.True(t, status.Stale)
	assert.Equal(t, 999999, status.PID)
}

func TestPidAliveDetectsSelf(t *testing.T) {
	assert.True(t, pidAlive(os.Getpid()))
	assert.False(t, pidAlive(0))
}
