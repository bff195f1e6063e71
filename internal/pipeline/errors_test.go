package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/prequal-cli/internal/resilience"
)

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  *Error
		want bool
	}{
		{"timeout", &Error{Kind: KindTransport, Transport: resilience.TransportTimeout}, true},
		{"refused", &Error{Kind: KindTransport, Transport: resilience.TransportRefused}, true},
		{"tls", &Error{Kind: KindTransport, Transport: resilience.TransportTLS}, false},
		{"http 503", &Error{Kind: KindHTTP, StatusCode: 503}, true},
		{"http 429", &Error{Kind: KindHTTP, StatusCode: 429}, true},
		{"http 404", &Error{Kind: KindHTTP, StatusCode: 404}, false},
		{"http 401", &Error{Kind: KindHTTP, StatusCode: 401}, false},
		{"credentials", &Error{Kind: KindCredentials}, false},
		{"contract", &Error{Kind: KindContract}, false},
		{"document", &Error{Kind: KindDocument}, false},
		{"mapping", &Error{Kind: KindMapping}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Retryable(tc.err))
		})
	}
}

func TestRetryable_NonPipelineError(t *testing.T) {
	assert.False(t, Retryable(errors.New("plain")))
	assert.False(t, Retryable(nil))
}

func TestError_Message(t *testing.T) {
	err := failf("tax_registry", StageRequest, KindCredentials, nil, "no credentials configured for %s", "tax_registry")
	assert.Contains(t, err.Error(), "tax_registry")
	assert.Contains(t, err.Error(), "no credentials")
	assert.Equal(t, StageRequest, err.Stage)
	assert.Equal(t, KindCredentials, err.Kind)
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := failf("trade_register", StageBuild, KindContract, cause, "parse response")
	assert.ErrorIs(t, err, cause)

	var pe *Error
	assert.ErrorAs(t, error(err), &pe)
	assert.Equal(t, "trade_register", pe.Provider)
}
