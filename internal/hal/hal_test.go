package hal

import (
	"testing"

	"github.com/berfenger/sensorhub/pkg/modbusio"

	"github.com/simonvetter/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPins(t *testing.T) {
	bank := NewMemoryPinBank(8)
	_, err := bank.Pin(8)
	assert.Error(t, err)

	pin, err := bank.Pin(3)
	require.NoError(t, err)
	require.NoError(t, pin.Write(true))
	assert.True(t, bank.Level(3))

	bank.Set(3, false)
	v, err := pin.Read()
	require.NoError(t, err)
	assert.False(t, v)
}

func TestModbusPins(t *testing.T) {
	client := modbusio.NewTestClient()
	bank := NewModbusPinBank(client, 100, false)

	pin, err := bank.Pin(2)
	require.NoError(t, err)
	require.NoError(t, pin.Write(true))
	assert.True(t, client.Coils[102])
	v, err := pin.Read()
	require.NoError(t, err)
	assert.True(t, v)

	inputs := NewModbusPinBank(client, 0, true)
	button, err := inputs.Pin(5)
	require.NoError(t, err)
	client.Inputs[5] = true
	v, err = button.Read()
	require.NoError(t, err)
	assert.True(t, v)
}

func TestModbusLEDStrip(t *testing.T) {
	client := modbusio.NewTestClient()
	strip := NewModbusLEDStrip(client, 40, 12)
	require.NoError(t, strip.Fill(Purple))
	v, err := client.ReadUint32(40, modbus.HOLDING_REGISTER)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xFF00FF), v)
	assert.Equal(t, 12, strip.Len())
}
