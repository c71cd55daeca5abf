package agent

import "github.com/saaga0h/quito/pkg/broker"

// mergeSettings overlays the set fields of top on base
func mergeSettings(base, top broker.Settings) broker.Settings {
	out := base
	if top.URI != "" {
		out.URI = top.URI
		// A URI carries its own host, port and protocol
		out.Host, out.Port, out.Protocol = "", nil, ""
	}
	if top.Host != "" {
		out.Host = top.Host
	}
	if top.Port != nil {
		out.Port = top.Port
	}
	if top.Protocol != "" {
		out.Protocol = top.Protocol
	}
	if top.TLS != nil {
		out.TLS = top.TLS
	}
	if top.ClientID != "" {
		out.ClientID = top.ClientID
	}
	if top.Username != "" {
		out.Username = top.Username
	}
	if top.Password != "" {
		out.Password = top.Password
	}
	if top.KeepaliveSec != nil {
		out.KeepaliveSec = top.KeepaliveSec
	}
	if top.ConnectTimeoutMs != nil {
		out.ConnectTimeoutMs = top.ConnectTimeoutMs
	}
	if top.CleanSession != nil {
		out.CleanSession = top.CleanSession
	}
	if top.ProtocolLevel != 0 {
		out.ProtocolLevel = top.ProtocolLevel
	}
	if top.ReconnectPeriodMs != nil {
		out.ReconnectPeriodMs = top.ReconnectPeriodMs
	}
	if top.Will != nil {
		out.Will = top.Will
	}
	if top.CABase64 != "" {
		out.CABase64 = top.CABase64
	}
	if top.CertificateBase64 != "" {
		out.CertificateBase64 = top.CertificateBase64
	}
	if top.PrivateKeyBase64 != "" {
		out.PrivateKeyBase64 = top.PrivateKeyBase64
	}
	if top.KeyStorePassword != "" {
		out.KeyStorePassword = top.KeyStorePassword
	}
	return out
}
