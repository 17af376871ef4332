package shared

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	ID   string `json:"id,omitempty" validate:"omitempty,taskid"`
	Name string `json:"name"         validate:"required"`
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		wantErr error
		fails   bool
	}{
		{name: "valid", body: `{"name":"x"}`},
		{name: "unknown field", body: `{"name":"x","extra":1}`, fails: true},
		{name: "two objects", body: `{"name":"x"} {"name":"y"}`, fails: true},
		{name: "empty", body: ``, fails: true},
		{name: "too large", body: `{"name":"` + strings.Repeat("a", MaxBodyBytes) + `"}`, wantErr: ErrBodyTooLarge, fails: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			var v sample
			err := DecodeJSON(httptest.NewRecorder(), req, &v)
			if !tc.fails {
				require.NoError(t, err)
				assert.Equal(t, "x", v.Name)
				return
			}
			require.Error(t, err)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}

func TestValidatorTaskIDRule(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateRequest(sample{ID: "job-1.a_b", Name: "x"}))
	assert.NoError(t, ValidateRequest(sample{Name: "x"}))

	err := ValidateRequest(sample{ID: "../etc", Name: "x"})
	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "id", verrs[0].Field())
	assert.Equal(t, "taskid", verrs[0].Tag())
}
