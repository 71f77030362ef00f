package gatekeep

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEmptyBody(t *testing.T) {
	body, err := VerificationResult{Status: 204}.Decode()
	require.NoError(t, err)
	assert.False(t, body.HasMissingRequirements())
	assert.Empty(t, body.DetailString())
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := VerificationResult{Status: 200, Body: []byte("<html>")}.Decode()
	assert.Error(t, err)
}

func TestMissingRequirementsPresenceIsMeaningful(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"absent", `{}`, false},
		{"null", `{"missing_requirements":null}`, false},
		{"empty list still routes to manage", `{"missing_requirements":[]}`, true},
		{"populated", `{"missing_requirements":["name"]}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := VerificationResult{Status: 200, Body: []byte(tt.body)}.Decode()
			require.NoError(t, err)
			assert.Equal(t, tt.want, body.HasMissingRequirements())
		})
	}
}

func TestClientSecretExtraction(t *testing.T) {
	body, err := VerificationResult{
		Status: 402,
		Body:   []byte(`{"detail":{"customer_session":{"client_secret":"cs_123"}}}`),
	}.Decode()
	require.NoError(t, err)
	assert.Equal(t, "cs_123", body.ClientSecret())

	body, err = VerificationResult{Status: 402, Body: []byte(`{"detail":"no subscription"}`)}.Decode()
	require.NoError(t, err)
	assert.Empty(t, body.ClientSecret())
	assert.Equal(t, "no subscription", body.DetailString())
}

func TestEmptySentinel(t *testing.T) {
	assert.True(t, VerificationResult{}.Empty())
	assert.False(t, VerificationResult{Status: 502}.Empty())
}

func TestHashTokenIsStableAndOpaque(t *testing.T) {
	assert.Equal(t, HashToken("tok"), HashToken("tok"))
	assert.NotEqual(t, HashToken("tok"), HashToken("tok2"))
	assert.NotContains(t, HashToken("tok"), "tok")
	assert.Len(t, HashToken("tok"), 64)
}
