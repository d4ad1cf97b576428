package validators

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/storefront-fulfillment/pkg/errors"
)

type addressBody struct {
	Name    string `json:"name" validate:"required,notblank"`
	Phone   string `json:"phone" validate:"omitempty,phone"`
	Pincode string `json:"pincode" validate:"required,pincode"`
}

func decode(t *testing.T, body string) (addressBody, error) {
	t.Helper()
	var dest addressBody
	err := DecodeJSONBody(httptest.NewRequest("POST", "/", strings.NewReader(body)), &dest)
	return dest, err
}

func TestDecodeJSONBodyAcceptsValidAddress(t *testing.T) {
	got, err := decode(t, `{"name":"Asha","phone":"+91 98765 43210","pincode":"411001"}`)
	require.NoError(t, err)
	require.Equal(t, "411001", got.Pincode)
}

func TestDecodeJSONBodyFieldErrors(t *testing.T) {
	_, err := decode(t, `{"name":"  ","phone":"12345","pincode":"01100"}`)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	var appErr *pkgerrors.Error
	require.ErrorAs(t, err, &appErr)
	details, ok := appErr.Details().(map[string]string)
	require.True(t, ok)
	require.Equal(t, "is required", details["name"])
	require.Equal(t, "must be a 10 digit mobile number", details["phone"])
	require.Equal(t, "must be a 6 digit pincode", details["pincode"])
}

func TestDecodeJSONBodyRejectsUnknownFieldsAndEmptyBody(t *testing.T) {
	_, err := decode(t, `{"name":"Asha","pincode":"411001","coupon":"FREE"}`)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = decode(t, ``)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	require.ErrorContains(t, err, "request body is required")
}

func TestSanitizeStringCapsRunes(t *testing.T) {
	require.Equal(t, "size", SanitizeString("  size  ", 10))
	require.Equal(t, "hé", SanitizeString("héllo", 2))
	require.Equal(t, "unbounded", SanitizeString(" unbounded ", 0))
}

func TestParseQueryInt(t *testing.T) {
	r := httptest.NewRequest("GET", "/?limit=25&bad=x&big=500", nil)

	v, err := ParseQueryInt(r, "limit", 20, 1, 100)
	require.NoError(t, err)
	require.Equal(t, 25, v)

	v, err = ParseQueryInt(r, "missing", 20, 1, 100)
	require.NoError(t, err)
	require.Equal(t, 20, v)

	_, err = ParseQueryInt(r, "bad", 20, 1, 100)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = ParseQueryInt(r, "big", 20, 1, 100)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
