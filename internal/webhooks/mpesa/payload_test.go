package mpesawebhook

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/duka/supermarket-backend/pkg/errors"
)

const successPayload = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": "ws_CO_191220191020363925",
      "ResultCode": 0,
      "ResultDesc": "The service request is processed successfully.",
      "CallbackMetadata": {
        "Item": [
          {"Name": "Amount", "Value": 200.00},
          {"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
          {"Name": "Balance"},
          {"Name": "TransactionDate", "Value": 20191219102115},
          {"Name": "PhoneNumber", "Value": 254708374149}
        ]
      }
    }
  }
}`

func TestParseCallbackSuccess(t *testing.T) {
	orderID := uuid.New()
	cb, err := ParseCallback([]byte(successPayload), orderID.String())
	require.NoError(t, err)

	require.True(t, cb.Succeeded())
	require.NotNil(t, cb.OrderID)
	require.Equal(t, orderID, *cb.OrderID)
	require.Equal(t, "ws_CO_191220191020363925", cb.CheckoutRequestID)
	require.Equal(t, "200", cb.Amount.String())
	require.Equal(t, "NLJ7RT61SV", cb.ReceiptNo)
	require.Equal(t, "254708374149", cb.PhoneNumber)
	require.True(t, time.Date(2019, 12, 19, 7, 21, 15, 0, time.UTC).Equal(cb.TransactionDate))
}

func TestParseCallbackFailureNeedsNoMetadata(t *testing.T) {
	body := `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_1","ResultCode":1032,"ResultDesc":"Request cancelled by user"}}}`
	cb, err := ParseCallback([]byte(body), "not-a-uuid")
	require.NoError(t, err)
	require.False(t, cb.Succeeded())
	require.Equal(t, 1032, cb.ResultCode)
	require.Nil(t, cb.OrderID)
	require.Nil(t, cb.Amount)
}

func TestParseCallbackPhoneAsString(t *testing.T) {
	body := `{"Body":{"stkCallback":{"ResultCode":0,"CallbackMetadata":{"Item":[
	  {"Name":"Amount","Value":"150"},
	  {"Name":"MpesaReceiptNumber","Value":"QAB12CD34E"},
	  {"Name":"PhoneNumber","Value":"254711000111"}]}}}}`
	cb, err := ParseCallback([]byte(body), "")
	require.NoError(t, err)
	require.Equal(t, "254711000111", cb.PhoneNumber)
	require.True(t, cb.TransactionDate.IsZero())
}

func TestParseCallbackMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":         `{"Body":`,
		"missing callback": `{"Body":{}}`,
		"missing code":     `{"Body":{"stkCallback":{"ResultDesc":"x"}}}`,
		"fractional code":  `{"Body":{"stkCallback":{"ResultCode":1.5}}}`,
		"success no amount": `{"Body":{"stkCallback":{"ResultCode":0,"CallbackMetadata":{"Item":[
		  {"Name":"MpesaReceiptNumber","Value":"R1"}]}}}}`,
		"success no receipt": `{"Body":{"stkCallback":{"ResultCode":0,"CallbackMetadata":{"Item":[
		  {"Name":"Amount","Value":10}]}}}}`,
		"negative amount": `{"Body":{"stkCallback":{"ResultCode":0,"CallbackMetadata":{"Item":[
		  {"Name":"Amount","Value":-10},{"Name":"MpesaReceiptNumber","Value":"R1"}]}}}}`,
		"object value": `{"Body":{"stkCallback":{"ResultCode":0,"CallbackMetadata":{"Item":[
		  {"Name":"Amount","Value":{"v":1}}]}}}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCallback([]byte(body), "")
			require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeMalformedCallback), "got %v", err)
		})
	}
}
