// Package httpstatus provides a short-phrase lookup for the HTTP status
// codes the deployment service client cares about, used when logging
// non-success responses ("[404] Not Found: ...").
package httpstatus

var phrases = map[int]string{
	100: "Continue",
	101: "Switching Protocols",
	200: "OK",
	201: "Created",
	202: "Accepted",
	204: "No Content",
	301: "Moved Permanently",
	302: "Found",
	304: "Not Modified",
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	408: "Request Timeout",
	409: "Conflict",
	413: "Payload Too Large",
	415: "Unsupported Media Type",
	422: "Unprocessable Entity",
	429: "Too Many Requests",
	500: "Internal Server Error",
	501: "Not Implemented",
	502: "Bad Gateway",
	503: "Service Unavailable",
	504: "Gateway Timeout",
}

// Phrase returns the short reason phrase for code, and false if code is not
// in the known subset.
func Phrase(code int) (string, bool) {
	p, ok := phrases[code]
	return p, ok
}
