package mqtt

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saaga0h/quito/pkg/broker"
)

type testCert struct {
	certDER []byte
	keyDER  []byte
}

func newTestCert(t *testing.T, cn string) testCert {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	certDER, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	return testCert{certDER: certDER, keyDER: keyDER}
}

func (c testCert) certPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.certDER})
}

func (c testCert) keyPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: c.keyDER})
}

func TestTLSConfig_Disabled(t *testing.T) {
	opts := buildOptions(t, broker.NewBuilder().URI("tcp://h:1883"))

	cfg, err := TLSConfig(opts)
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestTLSConfig_SystemRoots(t *testing.T) {
	opts := buildOptions(t, broker.NewBuilder().URI("wss://broker.example.com/mqtt:443"))

	cfg, err := TLSConfig(opts)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "broker.example.com", cfg.ServerName)
	assert.Nil(t, cfg.RootCAs)
	assert.Empty(t, cfg.Certificates)
}

func TestTLSConfig_PEMMaterial(t *testing.T) {
	ca := newTestCert(t, "test-ca")
	client := newTestCert(t, "device-1")

	opts := buildOptions(t, broker.NewBuilder().
		URI("ssl://broker:8883").
		CA(ca.certPEM()).
		ClientCertificate(client.certPEM(), client.keyPEM(), ""))

	cfg, err := TLSConfig(opts)
	require.NoError(t, err)
	assert.NotNil(t, cfg.RootCAs)
	require.Len(t, cfg.Certificates, 1)
	assert.Equal(t, "device-1", cfg.Certificates[0].Leaf.Subject.CommonName)
}

func TestTLSConfig_DERMaterial(t *testing.T) {
	ca := newTestCert(t, "test-ca")
	client := newTestCert(t, "device-2")

	opts := buildOptions(t, broker.NewBuilder().
		URI("mqtts://broker:8883").
		CA(ca.certDER).
		ClientCertificate(client.certDER, client.keyDER, ""))

	cfg, err := TLSConfig(opts)
	require.NoError(t, err)
	assert.NotNil(t, cfg.RootCAs)
	require.Len(t, cfg.Certificates, 1)
	assert.Equal(t, client.certDER, cfg.Certificates[0].Certificate[0])
}

func TestParsePrivateKey_Encrypted(t *testing.T) {
	client := newTestCert(t, "device-3")

	//nolint:staticcheck
	block, err := x509.EncryptPEMBlock(rand.Reader, "PRIVATE KEY", client.keyDER, []byte("changeit"), x509.PEMCipherAES256)
	require.NoError(t, err)
	encrypted := pem.EncodeToMemory(block)

	key, err := parsePrivateKey(encrypted, "changeit")
	require.NoError(t, err)
	assert.IsType(t, &ecdsa.PrivateKey{}, key)

	_, err = parsePrivateKey(encrypted, "")
	assert.Error(t, err)

	_, err = parsePrivateKey(encrypted, "wrong")
	assert.Error(t, err)
}

func TestParseCertificates_Errors(t *testing.T) {
	_, err := parseCertificates([]byte("garbage"))
	assert.Error(t, err)

	onlyKey := newTestCert(t, "x").keyPEM()
	_, err = parseCertificates(onlyKey)
	assert.Error(t, err)
}
