package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"net"

	"dezoomify/model"
)

// httpStatusError carries a non-2xx response status through to the
// pipeline's classification into model.NetworkError.
type httpStatusError struct{ status int }

func (e *httpStatusError) Error() string {
	return "unexpected HTTP status"
}

func (e *httpStatusError) StatusCode() int { return e.status }

// classifyTransportError turns a raw net/http transport error into the
// model.NetworkError taxonomy of §7 (Connect, TLS, Timeout).
func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &model.NetworkError{Kind: model.NetTimeout, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &model.NetworkError{Kind: model.NetTimeout, Err: err}
	}
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return &model.NetworkError{Kind: model.NetTLS, Err: err}
	}
	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return &model.NetworkError{Kind: model.NetTLS, Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &model.NetworkError{Kind: model.NetConnect, Err: err}
	}
	return &model.NetworkError{Kind: model.NetConnect, Err: err}
}

// AsNetworkError converts any error Fetch may return into the
// model.NetworkError shape the pipeline retries on.
func AsNetworkError(err error) *model.NetworkError {
	var ne *model.NetworkError
	if errors.As(err, &ne) {
		return ne
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return &model.NetworkError{Kind: model.NetHTTP, Status: statusErr.StatusCode()}
	}
	return &model.NetworkError{Kind: model.NetConnect, Err: err}
}
