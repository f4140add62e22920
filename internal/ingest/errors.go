package ingest

import (
	"errors"
	"fmt"
)

// Errors returned by Ingest. All of them are permanent: retrying the same
// submission yields the same outcome.
var (
	ErrMalformedToken           = errors.New("malformed test token")
	ErrTestNotFound             = errors.New("test not found")
	ErrUnsupportedClientVersion = errors.New("unsupported client version")
	ErrInvalidIPAddress         = errors.New("invalid ip address")
	ErrInsaneValue              = errors.New("insane value")
	ErrInvalidNetworkType       = errors.New("invalid network type")
	ErrAlreadyFinalized         = errors.New("test already finalized")
)

// Metric names a validated speed or ping sample.
type Metric string

// Validated samples.
const (
	MetricDownload Metric = "download"
	MetricUpload   Metric = "upload"
	MetricPing     Metric = "ping"
)

// InsaneValueError reports a present sample that lies outside its bounds.
type InsaneValueError struct {
	Metric Metric
	Value  int64
	Bounds Bounds
}

func (e *InsaneValueError) Error() string {
	return fmt.Sprintf("insane %s value %d: outside (%d, %d)", e.Metric, e.Value, e.Bounds.Min, e.Bounds.Max)
}

func (e *InsaneValueError) Unwrap() error {
	return ErrInsaneValue
}

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrMalformedToken, "malformed_token"},
	{ErrTestNotFound, "test_not_found"},
	{ErrUnsupportedClientVersion, "unsupported_client_version"},
	{ErrInvalidIPAddress, "invalid_ip_address"},
	{ErrInsaneValue, "insane_value"},
	{ErrInvalidNetworkType, "invalid_network_type"},
	{ErrAlreadyFinalized, "already_finalized"},
}

// Kind returns a stable label for err: "success" for nil, the taxonomy kind
// for ingestion errors and "internal" for anything else.
func Kind(err error) string {
	if err == nil {
		return "success"
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal"
}

// IsPermanent reports whether err is a rejection of the submission itself
// rather than a failure of the infrastructure processing it.
func IsPermanent(err error) bool {
	kind := Kind(err)
	return kind != "success" && kind != "internal"
}
