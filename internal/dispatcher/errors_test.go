package dispatcher

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorType_HTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, ErrValidation.HTTPStatus())
	assert.Equal(t, http.StatusUnauthorized, ErrAuthentication.HTTPStatus())
	assert.Equal(t, http.StatusNotFound, ErrModelNotFound.HTTPStatus())
	assert.Equal(t, http.StatusTooManyRequests, ErrRateLimit.HTTPStatus())
	assert.Equal(t, http.StatusServiceUnavailable, ErrOverloaded.HTTPStatus())
	assert.Equal(t, http.StatusServiceUnavailable, ErrConnection.HTTPStatus())
	assert.Equal(t, http.StatusGatewayTimeout, ErrTimeout.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, ErrAPI.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, ErrCapability.HTTPStatus())
}

func TestMapBackendError_ModelNotFound(t *testing.T) {
	e := MapBackendError(http.StatusNotFound, []byte(`{"error":"model not found"}`))
	assert.Equal(t, ErrModelNotFound, e.Type)
}

func TestMapBackendError_ToolsUnsupported(t *testing.T) {
	e := MapBackendError(http.StatusBadRequest, []byte(`{"error":"this model does not support tools"}`))
	assert.Equal(t, ErrCapability, e.Type)
}

func TestMapBackendError_Unauthorized(t *testing.T) {
	e := MapBackendError(http.StatusUnauthorized, []byte(`invalid api key`))
	assert.Equal(t, ErrAuthentication, e.Type)
}

func TestMapBackendError_RateLimited(t *testing.T) {
	e := MapBackendError(http.StatusTooManyRequests, []byte(`slow down`))
	assert.Equal(t, ErrRateLimit, e.Type)
}

func TestMapBackendError_Overloaded(t *testing.T) {
	e := MapBackendError(http.StatusServiceUnavailable, []byte(`backend is overloaded`))
	assert.Equal(t, ErrOverloaded, e.Type)
}

func TestMapBackendError_DefaultsToAPIError(t *testing.T) {
	e := MapBackendError(http.StatusBadGateway, []byte(`something broke`))
	assert.Equal(t, ErrAPI, e.Type)
}

func TestNewError_FormatsMessage(t *testing.T) {
	e := NewError(ErrValidation, "missing field %q", "model")
	assert.Equal(t, "missing field \"model\"", e.Message)
	assert.Equal(t, "validation_error: missing field \"model\"", e.Error())
}
