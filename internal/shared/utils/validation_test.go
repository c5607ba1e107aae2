package utils

import (
	goerrors "errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin/binding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paysettle/paysettle/internal/shared/errors"
)

type lineRequest struct {
	Quantity int `json:"quantity" binding:"required,min=1"`
}

type upsertRequest struct {
	Email string        `json:"email" binding:"required,email"`
	Rail  string        `json:"rail" binding:"omitempty,oneof=fiat crypto"`
	Items []lineRequest `json:"items" binding:"required,min=1,dive"`
}

func TestBindingError(t *testing.T) {
	tests := []struct {
		name        string
		req         upsertRequest
		wantDetails []string
	}{
		{
			name:        "missing email",
			req:         upsertRequest{Items: []lineRequest{{Quantity: 1}}},
			wantDetails: []string{"email is required"},
		},
		{
			name:        "bad rail and empty items",
			req:         upsertRequest{Email: "a@b.co", Rail: "cash", Items: []lineRequest{}},
			wantDetails: []string{"rail must be one of [fiat crypto]", "items must contain at least 1 entries"},
		},
		{
			name:        "nested item",
			req:         upsertRequest{Email: "a@b.co", Items: []lineRequest{{Quantity: 0}}},
			wantDetails: []string{"items[0].quantity is required"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := binding.Validator.ValidateStruct(&tt.req)
			require.Error(t, err)

			appErr := errors.GetAppError(BindingError(err))
			require.NotNil(t, appErr)
			assert.Equal(t, http.StatusBadRequest, appErr.Code)
			for _, want := range tt.wantDetails {
				assert.Contains(t, appErr.Details, want)
			}
		})
	}
}

func TestBindingError_MalformedBody(t *testing.T) {
	appErr := errors.GetAppError(BindingError(goerrors.New("unexpected EOF")))
	require.NotNil(t, appErr)
	assert.Equal(t, "invalid request", appErr.Message)
	assert.Equal(t, "unexpected EOF", appErr.Details)
}
