package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/smiyakawa/kiosk-relay/pkg/errors"
)

type sampleBody struct {
	Name  string `json:"name" validate:"required"`
	Count int    `json:"count" validate:"gte=0"`
}

func request(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
}

func TestDecodeJSONBody(t *testing.T) {
	var dest sampleBody
	require.NoError(t, DecodeJSONBody(request(`{"name":"a","count":2}`), &dest))
	assert.Equal(t, "a", dest.Name)
}

func TestDecodeJSONBodyInvalidJSON(t *testing.T) {
	var dest sampleBody
	err := DecodeJSONBody(request("nope"), &dest)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestDecodeJSONBodyFieldErrors(t *testing.T) {
	var dest sampleBody
	err := DecodeJSONBody(request(`{"count":-1}`), &dest)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	details, ok := typed.Details().(string)
	require.True(t, ok)
	assert.Contains(t, details, "Name (required)")
	assert.Contains(t, details, "Count (gte)")
}
