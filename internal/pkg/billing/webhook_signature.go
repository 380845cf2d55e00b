package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"strings"
)

// VerifyMercadoPagoSignature checks the x-signature header
// ("ts=<unix>,v1=<hex>") against the HMAC-SHA256 of the manifest
// "id:<data.id>;request-id:<x-request-id>;ts:<ts>;".
func VerifyMercadoPagoSignature(signatureHeader, requestID, dataID, webhookSecret string) bool {
	secret := strings.TrimSpace(webhookSecret)
	if secret == "" {
		return false
	}

	ts, v1 := parseSignatureHeader(signatureHeader)
	if ts == "" || v1 == "" {
		return false
	}
	decodedSig, err := hex.DecodeString(strings.ToLower(v1))
	if err != nil {
		return false
	}

	var manifest strings.Builder
	// Alphanumeric ids are signed in lower case.
	manifest.WriteString("id:" + strings.ToLower(strings.TrimSpace(dataID)) + ";")
	if rid := strings.TrimSpace(requestID); rid != "" {
		manifest.WriteString("request-id:" + rid + ";")
	}
	manifest.WriteString("ts:" + ts + ";")

	return verifyHMAC([]byte(manifest.String()), decodedSig, []byte(secret), sha256.New)
}

// SignMercadoPagoManifest produces the v1 value for a manifest. Used by
// tests and the replay tooling.
func SignMercadoPagoManifest(dataID, requestID, ts, webhookSecret string) string {
	manifest := "id:" + strings.ToLower(dataID) + ";"
	if requestID != "" {
		manifest += "request-id:" + requestID + ";"
	}
	manifest += "ts:" + ts + ";"
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write([]byte(manifest))
	return hex.EncodeToString(mac.Sum(nil))
}

func parseSignatureHeader(header string) (ts, v1 string) {
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "ts":
			ts = strings.TrimSpace(value)
		case "v1":
			v1 = strings.TrimSpace(value)
		}
	}
	return ts, v1
}

func verifyHMAC(payload, expectedSig, secret []byte, hashFunc func() hash.Hash) bool {
	mac := hmac.New(hashFunc, secret)
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), expectedSig)
}
