package mpesa

// CallbackEnvelope mirrors the JSON the gateway POSTs to the callback URL
// after the customer responds to the STK prompt.
type CallbackEnvelope struct {
	Body struct {
		STKCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// ResultSuccess is the gateway result code for a completed payment.
const ResultSuccess = 0
