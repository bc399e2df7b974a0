package transport

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	price := int64(10500)
	env := Envelope{Action: ActionNewOrder, InstrumentID: 1, PartyID: "alice", Side: "BUY", OrderType: "GTC", PriceCents: &price, Quantity: 3}

	require.NoError(t, WriteFrame(&buf, env))

	var decoded Envelope
	require.NoError(t, ReadFrame(bufio.NewReader(&buf), &decoded))

	assert.Equal(t, env.Action, decoded.Action)
	assert.Equal(t, env.InstrumentID, decoded.InstrumentID)
	assert.Equal(t, *env.PriceCents, *decoded.PriceCents)
}

func TestFrame_RejectsOversizeLengthPrefix(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x7f, 0xff, 0xff, 0xff}) // huge length prefix, no body
	var decoded Envelope
	err := ReadFrame(bufio.NewReader(&buf), &decoded)
	assert.Error(t, err)
}

func TestFrame_MultipleFramesSequentially(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, Envelope{Action: ActionCancel, OrderID: 1}))
	require.NoError(t, WriteFrame(&buf, Envelope{Action: ActionCancelAll}))

	r := bufio.NewReader(&buf)
	var first, second Envelope
	require.NoError(t, ReadFrame(r, &first))
	require.NoError(t, ReadFrame(r, &second))

	assert.Equal(t, ActionCancel, first.Action)
	assert.Equal(t, ActionCancelAll, second.Action)
}
