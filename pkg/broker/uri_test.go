package broker

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type uriFixtures struct {
	Valid []struct {
		URI      string `yaml:"uri"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Protocol string `yaml:"protocol"`
		TLS      bool   `yaml:"tls"`
	} `yaml:"valid"`
	Invalid []struct {
		URI   string `yaml:"uri"`
		Error string `yaml:"error"`
	} `yaml:"invalid"`
}

func loadURIFixtures(t *testing.T) uriFixtures {
	t.Helper()
	data, err := os.ReadFile("testdata/uris.yaml")
	require.NoError(t, err)

	var fixtures uriFixtures
	require.NoError(t, yaml.Unmarshal(data, &fixtures))
	require.NotEmpty(t, fixtures.Valid)
	require.NotEmpty(t, fixtures.Invalid)
	return fixtures
}

func TestParseURI_Fixtures(t *testing.T) {
	fixtures := loadURIFixtures(t)

	for _, tc := range fixtures.Valid {
		t.Run(tc.URI, func(t *testing.T) {
			want, err := ParseProtocolName(tc.Protocol)
			require.NoError(t, err)

			got, err := ParseURI(tc.URI)
			require.NoError(t, err)
			assert.Equal(t, URI{Host: tc.Host, Port: tc.Port, Protocol: want, TLS: tc.TLS}, got)
		})
	}

	for _, tc := range fixtures.Invalid {
		t.Run(tc.URI, func(t *testing.T) {
			_, err := ParseURI(tc.URI)
			require.Error(t, err)

			switch tc.Error {
			case "invalid_uri":
				var target *InvalidURIError
				assert.True(t, errors.As(err, &target), "expected InvalidURIError, got %T: %v", err, err)
			case "unknown_protocol":
				var target *UnknownProtocolError
				assert.True(t, errors.As(err, &target), "expected UnknownProtocolError, got %T: %v", err, err)
			default:
				t.Fatalf("unknown fixture error kind %q", tc.Error)
			}
		})
	}
}

func TestParseURI_Scenarios(t *testing.T) {
	u, err := ParseURI("tcp://test.mosquitto.org:1883")
	require.NoError(t, err)
	assert.Equal(t, "test.mosquitto.org", u.Host)
	assert.Equal(t, 1883, u.Port)
	assert.Equal(t, ProtocolTCP, u.Protocol)
	assert.False(t, u.TLS)

	u, err = ParseURI("wss://test.mosquitto.org/secure:8081")
	require.NoError(t, err)
	assert.Equal(t, "test.mosquitto.org/secure", u.Host)
	assert.Equal(t, 8081, u.Port)
	assert.Equal(t, ProtocolWSS, u.Protocol)
	assert.True(t, u.TLS)

	u, err = ParseURI("ssl://gateway.really-long-subdomain.mosquitto.org/secure:8081")
	require.NoError(t, err)
	assert.Equal(t, "gateway.really-long-subdomain.mosquitto.org/secure", u.Host)
	assert.Equal(t, 8081, u.Port)
	assert.Equal(t, ProtocolTCPTLS, u.Protocol)
	assert.True(t, u.TLS)
}

func TestParseURI_TypoInScheme(t *testing.T) {
	_, err := ParseURI("sssl://url.with.typo:90")

	var target *UnknownProtocolError
	require.ErrorAs(t, err, &target)
	assert.Equal(t, "sssl", target.Token)
}

func TestParseURI_TLSMatchesProtocol(t *testing.T) {
	for _, scheme := range []string{"tcp", "mqtt", "ssl", "mqtts", "ws", "wss"} {
		u, err := ParseURI(scheme + "://host:1")
		require.NoError(t, err, scheme)
		assert.Equal(t, u.Protocol == ProtocolTCPTLS || u.Protocol == ProtocolWSS, u.TLS, scheme)
	}
}

func TestParseURI_Deterministic(t *testing.T) {
	first, err1 := ParseURI("wss://example.org/mqtt:443")
	second, err2 := ParseURI("wss://example.org/mqtt:443")
	assert.Equal(t, first, second)
	assert.Equal(t, err1, err2)

	_, err1 = ParseURI("tcp://example.org")
	_, err2 = ParseURI("tcp://example.org")
	assert.Equal(t, err1.Error(), err2.Error())
}

func TestURI_String(t *testing.T) {
	u, err := ParseURI("mqtts://broker.local:8883")
	require.NoError(t, err)
	assert.Equal(t, "ssl://broker.local:8883", u.String())

	again, err := ParseURI(u.String())
	require.NoError(t, err)
	assert.Equal(t, u, again)
}
