package epp

// TRID pairs the caller-supplied and server-generated transaction ids that
// correlate a command and its response.
type TRID struct {
	ClientTransactionID string `json:"clientTransactionId,omitempty"`
	ServerTransactionID string `json:"serverTransactionId"`
}

// Result is a numeric protocol result code with its canonical message.
type Result struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Response is the envelope returned for every dispatched command.
type Response struct {
	Result  Result `json:"result"`
	TRID    TRID   `json:"trid"`
	ResData any    `json:"resData,omitempty"`
}

// Canonical result messages, keyed by code. The texts follow the protocol's
// fixed phrasing and are not localized.
var resultMessages = map[int]string{
	1000: "Command completed successfully",
	1001: "Command completed successfully; action pending",
	2002: "Command use error",
	2201: "Authorization error",
	2300: "Object pending transfer",
	2301: "Object not pending transfer",
	2302: "Object exists",
	2303: "Object does not exist",
	2304: "Object status prohibits operation",
	2400: "Command failed",
}

// ResultFor returns the Result for a numeric code with its canonical message.
func ResultFor(code int) Result {
	msg, ok := resultMessages[code]
	if !ok {
		msg = resultMessages[2400]
		code = 2400
	}
	return Result{Code: code, Message: msg}
}

// IsSuccess reports whether the result code is in the success class.
func (r Result) IsSuccess() bool {
	return r.Code >= 1000 && r.Code < 2000
}
