package trust

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/openpgp"
	"golang.org/x/crypto/openpgp/packet"

	"github.com/zeroinstall/zeroinstall/errcode"
)

// signatureMarker and signatureEnd delimit the trailer per spec §4.3: a
// newline, the literal marker, base64 bytes (embedded newlines allowed),
// then the end marker.
const (
	signatureMarker = "\n<!-- Base64 Signature\n"
	signatureEnd    = "\n-->\n"
)

// SplitPayload locates the signature trailer in raw feed bytes and
// returns the signed payload (everything up to and including the newline
// preceding the marker) and the raw OpenPGP detached signature bytes. If
// no trailer is present, it returns the whole input as payload and a nil
// signature — callers treat that as "unsigned", not as an error, since
// plenty of local/offline feeds are never signed.
func SplitPayload(raw []byte) (payload, signature []byte, err error) {
	idx := bytes.Index(raw, []byte(signatureMarker))
	if idx < 0 {
		return raw, nil, nil
	}
	payload = raw[:idx+1] // include the newline the marker starts with
	rest := raw[idx+len(signatureMarker):]

	endIdx := bytes.Index(rest, []byte(signatureEnd))
	if endIdx < 0 {
		return nil, nil, errcode.New(errcode.SignatureError, "malformed signature trailer: missing end marker")
	}
	if endIdx+len(signatureEnd) != len(rest) {
		return nil, nil, errcode.New(errcode.SignatureError, "malformed signature trailer: trailing bytes after end marker")
	}

	b64 := bytes.ReplaceAll(rest[:endIdx], []byte("\n"), nil)
	sig := make([]byte, base64.StdEncoding.DecodedLen(len(b64)))
	n, decErr := base64.StdEncoding.Decode(sig, b64)
	if decErr != nil {
		return nil, nil, errcode.Wrap(errcode.SignatureError, decErr, "malformed signature trailer: invalid base64")
	}
	return payload, sig[:n], nil
}

// SignatureStatus is the per-signature verdict spec §4.3 step 2 requires.
type SignatureStatus int

const (
	StatusValid SignatureStatus = iota
	StatusBadSignature
	StatusMissingKey
)

// SignatureResult is one signature's verification outcome.
type SignatureResult struct {
	Status      SignatureStatus
	Fingerprint string
	KeyID       uint64 // populated when Status == StatusMissingKey
	Timestamp   int64
}

// Verify checks signature (OpenPGP detached, binary form) against payload
// using the given keyring, returning one result. A nil signature (no
// trailer present) is not handed to Verify; callers check SplitPayload's
// result first.
func Verify(keyring openpgp.EntityList, payload, signature []byte) SignatureResult {
	signer, err := openpgp.CheckDetachedSignature(keyring, bytes.NewReader(payload), bytes.NewReader(signature))
	if err == nil && signer != nil {
		return SignatureResult{
			Status:      StatusValid,
			Fingerprint: fmt.Sprintf("%X", signer.PrimaryKey.Fingerprint),
		}
	}

	if keyID, ok := missingKeyID(signature); ok {
		return SignatureResult{Status: StatusMissingKey, KeyID: keyID}
	}
	return SignatureResult{Status: StatusBadSignature}
}

// missingKeyID parses just enough of the signature packet to recover the
// issuer key ID, used to look the key up from a keyserver and retry.
func missingKeyID(signature []byte) (uint64, bool) {
	pr := packet.NewReader(bytes.NewReader(signature))
	p, err := pr.Next()
	if err != nil {
		return 0, false
	}
	sig, ok := p.(*packet.Signature)
	if !ok || sig.IssuerKeyId == nil {
		return 0, false
	}
	return *sig.IssuerKeyId, true
}
