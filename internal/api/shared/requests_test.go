package shared

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	Name   string `json:"name" validate:"required"`
	Status string `json:"status" validate:"required,oneof=A B"`
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name        string
		requestBody string
		wantErr     error
		errContains string
	}{
		{name: "valid json", requestBody: `{"name": "test", "status": "A"}`},
		{name: "invalid json", requestBody: `{"name": "test",}`, errContains: "invalid JSON body"},
		{name: "wrong type", requestBody: `{"name": 5}`, errContains: "invalid JSON body"},
		{name: "empty body", requestBody: "", wantErr: ErrEmptyBody},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.requestBody))
			var target sampleRequest

			err := DecodeJSON(req, &target)

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.errContains != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
			default:
				require.NoError(t, err)
				assert.Equal(t, "test", target.Name)
			}
		})
	}
}

func TestValidateRequestUsesJSONNames(t *testing.T) {
	err := ValidateRequest(sampleRequest{Status: "C"})
	require.Error(t, err)

	var verrs validator.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	require.Len(t, verrs, 2)
	assert.Equal(t, "name", verrs[0].Field())
	assert.Equal(t, "required", verrs[0].Tag())
	assert.Equal(t, "status", verrs[1].Field())
	assert.Equal(t, "oneof", verrs[1].Tag())

	assert.NoError(t, ValidateRequest(sampleRequest{Name: "x", Status: "B"}))
}
