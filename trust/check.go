package trust

import (
	"context"

	"golang.org/x/crypto/openpgp"

	"github.com/zeroinstall/zeroinstall/errcode"
)

// KeyInfoService abstracts the "keyserver or key-info service" lookup
// spec §4.3 step 3 calls for: given a missing key's ID, return a keyring
// entry that can verify it, or ok=false if it cannot be found.
type KeyInfoService interface {
	FetchKey(ctx context.Context, keyID uint64) (openpgp.EntityList, bool)
}

// TrustHandler lets the caller approve an otherwise-untrusted signer, per
// spec §4.3 step 4 ("optionally prompt through the handler"). ConfirmKey
// returns true to add (fingerprint, domain) to the database.
type TrustHandler interface {
	ConfirmKey(fingerprint, domain string) bool
}

// CheckTrust implements the five-step algorithm of spec §4.3: split the
// signature trailer, verify against keyring, retry missing keys through
// keyInfo, filter to signatures trusted for domain, and fall back to
// handler approval before persisting new trust.
func CheckTrust(ctx context.Context, db *DB, keyring openpgp.EntityList, keyInfo KeyInfoService, handler TrustHandler, raw []byte, domain string) (SignatureResult, error) {
	payload, signature, err := SplitPayload(raw)
	if err != nil {
		return SignatureResult{}, err
	}
	if signature == nil {
		// Unsigned: only acceptable for local file: feeds, a decision the
		// caller makes before reaching here (it never calls CheckTrust for
		// those). Anything else is an error.
		return SignatureResult{}, errcode.New(errcode.SignatureError, "feed carries no signature trailer")
	}

	result := Verify(keyring, payload, signature)
	if result.Status == StatusMissingKey && keyInfo != nil {
		if more, ok := keyInfo.FetchKey(ctx, result.KeyID); ok {
			combined := append(openpgp.EntityList{}, keyring...)
			combined = append(combined, more...)
			result = Verify(combined, payload, signature)
		}
	}

	if result.Status != StatusValid {
		return result, errcode.New(errcode.SignatureError, "no valid signature found")
	}

	if db.IsTrusted(result.Fingerprint, domain) {
		return result, nil
	}

	if handler != nil && handler.ConfirmKey(result.Fingerprint, domain) {
		if err := db.Trust(result.Fingerprint, domain); err != nil {
			return result, err
		}
		return result, nil
	}

	return result, errcode.New(errcode.SignatureError, "signature %s valid but not trusted for domain %s", result.Fingerprint, domain)
}
