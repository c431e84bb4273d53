package valclient

import (
	"fmt"
	"strings"
	"sync"

	"github.com/bogdanfinn/fhttp/http2"
	"github.com/bogdanfinn/tls-client/profiles"
	tls "github.com/bogdanfinn/utls"
)

const (
	RiotClientUserAgent = "RiotClient/63.0.9.4909983.4789131 rso-auth (Windows;10;;Professional, x64)"
	riotClientBuild     = "63.0.9.4909983.4789131"
)

// TLSProfile is the ClientHello the native Riot Client presents. The identity
// provider's edge rejects handshakes that do not match it.
type TLSProfile struct {
	MinVersion uint16
	MaxVersion uint16

	// CipherSuites13 are offered first, then the legacy TLS 1.2 suites.
	CipherSuites13      []uint16
	CipherSuites        []uint16
	SignatureAlgorithms []tls.SignatureScheme
	Curves              []tls.CurveID
	ALPN                []string
}

// RiotClientTLS mirrors the OpenSSL context the Riot Client builds.
var RiotClientTLS = TLSProfile{
	MinVersion: tls.VersionTLS12,
	MaxVersion: tls.VersionTLS13,
	CipherSuites13: []uint16{
		tls.TLS_CHACHA20_POLY1305_SHA256,
		tls.TLS_AES_128_GCM_SHA256,
		tls.TLS_AES_256_GCM_SHA384,
	},
	CipherSuites: []uint16{
		tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
		tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA,
		tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA,
		tls.TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA,
		tls.TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA,
		tls.TLS_RSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_RSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_RSA_WITH_AES_128_CBC_SHA,
		tls.TLS_RSA_WITH_AES_256_CBC_SHA,
		tls.TLS_RSA_WITH_3DES_EDE_CBC_SHA,
	},
	SignatureAlgorithms: []tls.SignatureScheme{
		tls.ECDSAWithP256AndSHA256, // ecdsa_secp256r1_sha256
		tls.PSSWithSHA256,          // rsa_pss_rsae_sha256
		tls.PKCS1WithSHA256,        // rsa_pkcs1_sha256
		tls.ECDSAWithP384AndSHA384, // ecdsa_secp384r1_sha384
		tls.PSSWithSHA384,          // rsa_pss_rsae_sha384
		tls.PKCS1WithSHA384,        // rsa_pkcs1_sha384
		tls.PSSWithSHA512,          // rsa_pss_rsae_sha512
		tls.PKCS1WithSHA512,        // rsa_pkcs1_sha512
		tls.PKCS1WithSHA1,          // rsa_pkcs1_sha1
	},
	Curves: []tls.CurveID{
		tls.X25519,
		tls.CurveP256,
		tls.CurveP384,
	},
	ALPN: []string{"http/1.1"},
}

// Spec builds the ClientHello. No GREASE and no encrypt-then-mac, matching
// the OpenSSL build the native client links against.
func (p TLSProfile) Spec() tls.ClientHelloSpec {
	suites := make([]uint16, 0, len(p.CipherSuites13)+len(p.CipherSuites))
	suites = append(suites, p.CipherSuites13...)
	suites = append(suites, p.CipherSuites...)

	var versions []uint16
	for v := p.MaxVersion; v >= p.MinVersion && v >= tls.VersionTLS10; v-- {
		versions = append(versions, v)
	}

	return tls.ClientHelloSpec{
		TLSVersMin:   p.MinVersion,
		TLSVersMax:   p.MaxVersion,
		CipherSuites: suites,
		CompressionMethods: []byte{
			tls.CompressionNone,
		},
		Extensions: []tls.TLSExtension{
			&tls.SNIExtension{},
			&tls.SupportedPointsExtension{SupportedPoints: []byte{
				tls.PointFormatUncompressed,
			}},
			&tls.SupportedCurvesExtension{Curves: p.Curves},
			&tls.SessionTicketExtension{},
			&tls.ALPNExtension{AlpnProtocols: p.ALPN},
			&tls.ExtendedMasterSecretExtension{},
			&tls.SignatureAlgorithmsExtension{SupportedSignatureAlgorithms: p.SignatureAlgorithms},
			&tls.SupportedVersionsExtension{Versions: versions},
			&tls.PSKKeyExchangeModesExtension{Modes: []uint8{
				tls.PskModeDHE,
			}},
			&tls.KeyShareExtension{KeyShares: []tls.KeyShare{
				{Group: tls.X25519},
			}},
			&tls.RenegotiationInfoExtension{
				Renegotiation: tls.RenegotiateOnceAsClient,
			},
		},
	}
}

func (p TLSProfile) clientHelloID() tls.ClientHelloID {
	return tls.ClientHelloID{
		Client:               "RiotClient",
		RandomExtensionOrder: false,
		Version:              riotClientBuild,
		Seed:                 nil,
		SpecFactory: func() (tls.ClientHelloSpec, error) {
			return p.Spec(), nil
		},
	}
}

var (
	tlsCapabilityOnce sync.Once
	tlsCapabilityErr  error
)

// checkTLSCapabilities verifies, once per process, that the TLS stack knows
// every suite and signature scheme the native client offers.
func checkTLSCapabilities() error {
	tlsCapabilityOnce.Do(func() {
		tlsCapabilityErr = RiotClientTLS.validate()
	})
	return tlsCapabilityErr
}

func (p TLSProfile) validate() error {
	if len(p.ALPN) == 0 {
		return fmt.Errorf("%w: no ALPN protocols", ErrTLSUnsupported)
	}
	if p.MinVersion > p.MaxVersion {
		return fmt.Errorf("%w: min version above max version", ErrTLSUnsupported)
	}
	for _, id := range append(append([]uint16{}, p.CipherSuites13...), p.CipherSuites...) {
		if strings.HasPrefix(tls.CipherSuiteName(id), "0x") {
			return fmt.Errorf("%w: cipher suite 0x%04X", ErrTLSUnsupported, id)
		}
	}
	for _, scheme := range p.SignatureAlgorithms {
		if strings.HasPrefix(scheme.String(), "SignatureScheme(") {
			return fmt.Errorf("%w: signature scheme 0x%04X", ErrTLSUnsupported, uint16(scheme))
		}
	}
	return nil
}

// Build returns the tls-client profile for this ClientHello. A platform that
// cannot honour the overrides yields a *FatalError.
func (p TLSProfile) Build() (profiles.ClientProfile, error) {
	if err := checkTLSCapabilities(); err != nil {
		return profiles.ClientProfile{}, NewFatalError(err)
	}
	if err := p.validate(); err != nil {
		return profiles.ClientProfile{}, NewFatalError(err)
	}

	return profiles.NewClientProfile(
		p.clientHelloID(),
		map[http2.SettingID]uint32{
			http2.SettingHeaderTableSize:   65536,
			http2.SettingEnablePush:        0,
			http2.SettingInitialWindowSize: 6291456,
			http2.SettingMaxHeaderListSize: 262144,
		},
		[]http2.SettingID{
			http2.SettingHeaderTableSize,
			http2.SettingEnablePush,
			http2.SettingInitialWindowSize,
			http2.SettingMaxHeaderListSize,
		},
		PseudoHeaderOrder,
		15663105,
		nil, // HTTP/1.1 only, no priority frames
		nil,
	), nil
}

// RiotClientProfile returns the tls-client profile of the native client.
func RiotClientProfile() (profiles.ClientProfile, error) {
	return RiotClientTLS.Build()
}
