package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifyMercadoPagoSignature(t *testing.T) {
	secret := "top-secret"
	v1 := SignMercadoPagoManifest("123456", "req-1", "1742505638683", secret)
	header := "ts=1742505638683,v1=" + v1

	assert.True(t, VerifyMercadoPagoSignature(header, "req-1", "123456", secret))
	assert.True(t, VerifyMercadoPagoSignature(" ts=1742505638683 , v1="+v1, "req-1", "123456", secret))

	assert.False(t, VerifyMercadoPagoSignature(header, "req-2", "123456", secret), "request id is signed")
	assert.False(t, VerifyMercadoPagoSignature(header, "req-1", "654321", secret), "data id is signed")
	assert.False(t, VerifyMercadoPagoSignature(header, "req-1", "123456", "other"), "wrong secret")
	assert.False(t, VerifyMercadoPagoSignature("ts=1742505638683,v1=zz", "req-1", "123456", secret))
	assert.False(t, VerifyMercadoPagoSignature("v1="+v1, "req-1", "123456", secret))
	assert.False(t, VerifyMercadoPagoSignature(header, "req-1", "123456", ""))
}

func TestVerifyMercadoPagoSignature_AlphanumericIDsAreLowercased(t *testing.T) {
	v1 := SignMercadoPagoManifest("abc123", "", "1", "s")
	assert.True(t, VerifyMercadoPagoSignature("ts=1,v1="+v1, "", "ABC123", "s"))
}
