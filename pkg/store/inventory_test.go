package store_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftwatch-net/driftwatch/internal/testutil"
	"github.com/driftwatch-net/driftwatch/pkg/schema"
	"github.com/driftwatch-net/driftwatch/pkg/util"
)

func device(customer, name, host string) schema.InventoryDevice {
	d := testutil.Device(customer, name)
	d.Host = host
	return d
}

func TestCreateDevice(t *testing.T) {
	st := testutil.TempStore(t)

	require.NoError(t, st.CreateDevice(device("acme", "sw1", "10.0.0.1")))

	got, err := st.GetDevice("acme", "sw1")
	require.NoError(t, err)
	assert.Equal(t, "mikrotik", got.Vendor)
	assert.Equal(t, 22, got.Port)
	assert.True(t, got.Active)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestCreateDeviceUniqueness(t *testing.T) {
	st := testutil.TempStore(t)
	require.NoError(t, st.CreateDevice(device("acme", "sw1", "10.0.0.1")))

	// same (customer, device) pair
	err := st.CreateDevice(device("acme", "sw1", "10.0.0.99"))
	require.ErrorIs(t, err, util.ErrStoreConstraint)
	assert.Contains(t, err.Error(), "acme/sw1")

	// same (host, port) endpoint under a different name
	err = st.CreateDevice(device("acme", "sw2", "10.0.0.1"))
	require.ErrorIs(t, err, util.ErrStoreConstraint)
	assert.Contains(t, err.Error(), "10.0.0.1:22")

	// same device id under another customer is fine
	assert.NoError(t, st.CreateDevice(device("globex", "sw1", "10.1.0.1")))
}

func TestCreateDeviceValidation(t *testing.T) {
	st := testutil.TempStore(t)

	bad := device("acme", "sw1", "10.0.0.1")
	bad.Port = 0
	assert.ErrorIs(t, st.CreateDevice(bad), util.ErrValidationFailed)

	bad = device("", "sw1", "10.0.0.1")
	assert.ErrorIs(t, st.CreateDevice(bad), util.ErrValidationFailed)
}

func TestListDevices(t *testing.T) {
	st := testutil.TempStore(t)
	require.NoError(t, st.CreateDevice(device("acme", "sw1", "10.0.0.1")))
	require.NoError(t, st.CreateDevice(device("acme", "sw2", "10.0.0.2")))
	require.NoError(t, st.CreateDevice(device("globex", "fw1", "10.1.0.1")))

	all, err := st.ListDevices("", false)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	acme, err := st.ListDevices("acme", false)
	require.NoError(t, err)
	assert.Len(t, acme, 2)

	_, err = st.ToggleActive("acme", "sw2")
	require.NoError(t, err)
	active, err := st.ListDevices("acme", true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "sw1", active[0].DeviceID)
}

func TestToggleActive(t *testing.T) {
	st := testutil.TempStore(t)
	require.NoError(t, st.CreateDevice(device("acme", "sw1", "10.0.0.1")))

	nowActive, err := st.ToggleActive("acme", "sw1")
	require.NoError(t, err)
	assert.False(t, nowActive)

	nowActive, err = st.ToggleActive("acme", "sw1")
	require.NoError(t, err)
	assert.True(t, nowActive)

	_, err = st.ToggleActive("acme", "ghost")
	assert.ErrorIs(t, err, util.ErrNotFound)
}

func TestDeleteDevice(t *testing.T) {
	st := testutil.TempStore(t)
	require.NoError(t, st.CreateDevice(device("acme", "sw1", "10.0.0.1")))

	require.NoError(t, st.DeleteDevice("acme", "sw1"))
	_, err := st.GetDevice("acme", "sw1")
	assert.ErrorIs(t, err, util.ErrNotFound)
	assert.ErrorIs(t, st.DeleteDevice("acme", "sw1"), util.ErrNotFound)
}
