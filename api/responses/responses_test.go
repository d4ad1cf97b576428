package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	pkgerrors "github.com/angelmondragon/storefront-fulfillment/pkg/errors"
	"github.com/angelmondragon/storefront-fulfillment/pkg/logger"
	"github.com/angelmondragon/storefront-fulfillment/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, map[string]string{"waybill": "WB1"})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body types.SuccessEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "WB1", body.Data.(map[string]any)["waybill"])
}

func TestWriteSuccessStatus(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, map[string]string{"id": "1"})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantMessage string
		wantDetails bool
	}{
		{
			name:        "ineligible surfaces workflow message",
			err:         pkgerrors.New(pkgerrors.CodeIneligible, "return window expired"),
			wantStatus:  http.StatusBadRequest,
			wantCode:    string(pkgerrors.CodeIneligible),
			wantMessage: "return window expired",
		},
		{
			name:        "invalid signature hides detail",
			err:         pkgerrors.New(pkgerrors.CodeInvalidSignature, "hmac mismatch for order 42"),
			wantStatus:  http.StatusBadRequest,
			wantCode:    string(pkgerrors.CodeInvalidSignature),
			wantMessage: "payment verification failed",
		},
		{
			name: "carrier rejection carries step details",
			err: pkgerrors.New(pkgerrors.CodeCarrierRejected, "pincode not serviceable").
				WithDetails(map[string]any{"step": "create_shipment"}),
			wantStatus:  http.StatusBadRequest,
			wantCode:    string(pkgerrors.CodeCarrierRejected),
			wantMessage: "pincode not serviceable",
			wantDetails: true,
		},
		{
			name:        "carrier unavailable uses public message",
			err:         pkgerrors.Wrap(pkgerrors.CodeCarrierUnavailable, errors.New("timeout"), "fetch waybill"),
			wantStatus:  http.StatusServiceUnavailable,
			wantCode:    string(pkgerrors.CodeCarrierUnavailable),
			wantMessage: "carrier unavailable",
		},
		{
			name:        "untyped error becomes internal",
			err:         errors.New("boom"),
			wantStatus:  http.StatusInternalServerError,
			wantCode:    string(pkgerrors.CodeInternal),
			wantMessage: "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logBuf bytes.Buffer
			logg := logger.New(logger.Options{ServiceName: "test", Output: &logBuf})

			w := httptest.NewRecorder()
			WriteError(context.Background(), logg, w, tt.err)

			require.Equal(t, tt.wantStatus, w.Code)

			var body types.ErrorEnvelope
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, tt.wantCode, body.Error.Code)
			assert.Equal(t, tt.wantMessage, body.Error.Message)
			assert.Equal(t, tt.wantDetails, body.Error.Details != nil)
			assert.Contains(t, logBuf.String(), "request.error")
		})
	}
}

func TestWriteErrorWithoutLogger(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))

	require.Equal(t, http.StatusNotFound, w.Code)
	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "order not found", body.Error.Message)
}
