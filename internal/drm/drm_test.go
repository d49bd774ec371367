package drm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFourCC(t *testing.T) {
	assert.Equal(t, uint32(0x34325258), FormatXRGB8888) // "XR24"
	assert.Equal(t, uint32(0x34325241), FormatARGB8888) // "AR24"
}

var connectorNameCases = []struct {
	Type   uint32
	TypeID uint32
	Want   string
}{
	{Type: 11, TypeID: 1, Want: "HDMI-A-1"},
	{Type: 10, TypeID: 2, Want: "DP-2"},
	{Type: 14, TypeID: 1, Want: "eDP-1"},
	{Type: 1, TypeID: 1, Want: "VGA-1"},
	{Type: 99, TypeID: 3, Want: "Unknown-3"},
}

func TestConnectorName(t *testing.T) {
	for _, tc := range connectorNameCases {
		assert.Equal(t, tc.Want, ConnectorName(tc.Type, tc.TypeID))
	}
}
