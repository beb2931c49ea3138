package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeVersion(t *testing.T) {
	assert.Equal(t, OCPP_VERSION_1_6, NormalizeVersion("ocpp1.6"))
	assert.Equal(t, OCPP_VERSION_1_6, NormalizeVersion("OCPP1.6"))
	assert.Equal(t, OCPP_VERSION_1_6, NormalizeVersion(" 1.6 "))
	assert.Equal(t, "", NormalizeVersion("ocpp2.0.1"))
	assert.False(t, IsVersionSupported("ocpp2.0"))
}

func TestNegotiateSubprotocol(t *testing.T) {
	v, ok := NegotiateSubprotocol([]string{"ocpp2.0.1", "ocpp1.6"})
	assert.True(t, ok)
	assert.Equal(t, "ocpp1.6", v)

	_, ok = NegotiateSubprotocol([]string{"ocpp2.0.1"})
	assert.False(t, ok)

	_, ok = NegotiateSubprotocol(nil)
	assert.False(t, ok)
}

func TestGetSupportedVersions(t *testing.T) {
	versions := GetSupportedVersions()
	versions[0] = "mutated"
	assert.Equal(t, OCPP_VERSION_1_6, SupportedVersions[0])
}
