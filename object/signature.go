package object

import "bytes"

// SignatureType identifies the cryptographic signature format embedded in a
// commit or tag's trailer/gpgsig header.
type SignatureType int8

const (
	SignatureTypeUnknown SignatureType = iota
	SignatureTypeOpenPGP
	SignatureTypeX509
	SignatureTypeSSH
)

func (t SignatureType) String() string {
	switch t {
	case SignatureTypeOpenPGP:
		return "openpgp"
	case SignatureTypeX509:
		return "x509"
	case SignatureTypeSSH:
		return "ssh"
	default:
		return "unknown"
	}
}

type signatureFormat [][]byte

var (
	openPGPSignatureFormat = signatureFormat{
		[]byte("-----BEGIN PGP SIGNATURE-----"),
		[]byte("-----BEGIN PGP MESSAGE-----"),
	}
	x509SignatureFormat = signatureFormat{
		[]byte("-----BEGIN CERTIFICATE-----"),
		[]byte("-----BEGIN SIGNED MESSAGE-----"),
	}
	sshSignatureFormat = signatureFormat{
		[]byte("-----BEGIN SSH SIGNATURE-----"),
	}
)

var knownSignatureFormats = map[SignatureType]signatureFormat{
	SignatureTypeOpenPGP: openPGPSignatureFormat,
	SignatureTypeX509:    x509SignatureFormat,
	SignatureTypeSSH:     sshSignatureFormat,
}

// DetectSignatureType determines the signature format from its leading
// bytes.
func DetectSignatureType(signature []byte) SignatureType {
	return typeForSignature(signature)
}

func typeForSignature(b []byte) SignatureType {
	for t, formats := range knownSignatureFormats {
		for _, begin := range formats {
			if bytes.HasPrefix(b, begin) {
				return t
			}
		}
	}
	return SignatureTypeUnknown
}

// parseSignedBytes returns the position of the last signature block found
// in b, or -1 if none is present. Matches Git's gpg-interface.c
// parse_signed_buffer: when multiple signature blocks appear, the last
// one's start is returned, so everything from there on is the signature.
func parseSignedBytes(b []byte) (int, SignatureType) {
	n, match := 0, -1
	var t SignatureType
	for n < len(b) {
		i := b[n:]
		if st := typeForSignature(i); st != SignatureTypeUnknown {
			match = n
			t = st
		}
		if eol := bytes.IndexByte(i, '\n'); eol >= 0 {
			n += eol + 1
			continue
		}
		break
	}
	return match, t
}
