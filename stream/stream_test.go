package stream

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/mediax/colourspace"
	"github.com/opd-ai/mediax/limits"
)

func testInfo() Info {
	return Info{
		SessionName: "t1",
		Hostname:    "127.0.0.1",
		Port:        5004,
		Height:      4,
		Width:       4,
		Framerate:   25,
		Encoding:    colourspace.RGB24,
	}
}

func TestInfoGeometry(t *testing.T) {
	info := testInfo()

	stride, err := info.Stride()
	require.NoError(t, err)
	assert.Equal(t, 12, stride)

	size, err := info.FrameSize()
	require.NoError(t, err)
	assert.Equal(t, 48, size)

	assert.Equal(t, "127.0.0.1:5004", info.Address())
	assert.False(t, info.IsMulticast())

	info.Hostname = "239.192.1.1"
	assert.True(t, info.IsMulticast())
}

func TestInfoValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Info)
		wantErr error
	}{
		{name: "valid", modify: func(*Info) {}},
		{name: "no port", modify: func(i *Info) { i.Port = 0 }, wantErr: ErrNotConfigured},
		{name: "undefined encoding", modify: func(i *Info) { i.Encoding = colourspace.Undefined }, wantErr: ErrNotConfigured},
		{name: "zero height", modify: func(i *Info) { i.Height = 0 }, wantErr: limits.ErrLineEmpty},
		{name: "line too long", modify: func(i *Info) { i.Width = 30000 }, wantErr: limits.ErrLineTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := testInfo()
			tt.modify(&info)
			err := info.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPortSettings(t *testing.T) {
	var p Port
	assert.False(t, p.SettingsValid())

	info := testInfo()
	info.Encoding = colourspace.Undefined
	p.Configure(info)
	assert.False(t, p.SettingsValid())
	assert.Equal(t, SettingsAll&^SettingEncoding, p.Settings())

	p.Configure(testInfo())
	assert.True(t, p.SettingsValid())
	assert.Equal(t, "127.0.0.1", p.Hostname)
	assert.Equal(t, uint16(5004), p.Port)
}

func TestOpError(t *testing.T) {
	cause := errors.New("address in use")
	err := fmt.Errorf("open: %w", NewSocketError("listen", "0.0.0.0:5004", cause))

	assert.ErrorIs(t, err, ErrSocket)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "listen 0.0.0.0:5004")

	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "listen", opErr.Op)

	assert.Equal(t, "stream close: x", (&OpError{Op: "close", Err: errors.New("x")}).Error())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", Closed.String())
	assert.Equal(t, "open", Open.String())
	assert.Equal(t, "started", Started.String())
	assert.Equal(t, "stopped", Stopped.String())
	assert.Equal(t, "unknown", State(9).String())
}
