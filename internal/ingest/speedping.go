package ingest

import "fmt"

// Bounds is an open interval: both Min and Max are rejected.
type Bounds struct {
	Min int64
	Max int64
}

// Contains reports whether v lies strictly between Min and Max.
func (b Bounds) Contains(v int64) bool {
	return v > b.Min && v < b.Max
}

// Limits holds the accepted ranges of the speed and ping samples.
type Limits struct {
	// Speed bounds download and upload speeds in kbit/s.
	Speed Bounds
	// Ping bounds the shortest ping in nanoseconds.
	Ping Bounds
}

// DefaultLimits returns the ranges used when nothing is configured.
func DefaultLimits() Limits {
	return Limits{
		Speed: Bounds{Min: 0, Max: 10_000_000_000},
		Ping:  Bounds{Min: 0, Max: 60_000_000_000},
	}
}

// Validate checks that every range is non-empty.
func (l Limits) Validate() error {
	if l.Speed.Min >= l.Speed.Max {
		return fmt.Errorf("speed bounds (%d, %d) are empty", l.Speed.Min, l.Speed.Max)
	}
	if l.Ping.Min >= l.Ping.Max {
		return fmt.Errorf("ping bounds (%d, %d) are empty", l.Ping.Min, l.Ping.Max)
	}
	return nil
}

// Samples are the validated speed and ping values of a result. A nil field
// was not submitted.
type Samples struct {
	DownloadSpeed *int64
	UploadSpeed   *int64
	ShortestPing  *int64
}

// SpeedPingValidator range-checks speed and ping samples.
type SpeedPingValidator struct {
	limits Limits
}

// NewSpeedPingValidator returns a validator enforcing limits.
func NewSpeedPingValidator(limits Limits) (*SpeedPingValidator, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	return &SpeedPingValidator{limits: limits}, nil
}

func (v *SpeedPingValidator) bounds(m Metric) Bounds {
	if m == MetricPing {
		return v.limits.Ping
	}
	return v.limits.Speed
}

// Check classifies a single sample of metric m.
func (v *SpeedPingValidator) Check(m Metric, value *int64) FieldState {
	if value == nil {
		return FieldAbsent
	}
	if !v.bounds(m).Contains(*value) {
		return FieldInvalid
	}
	return FieldValid
}

// Validate checks download, upload and ping in that order and fails on the
// first present sample outside its bounds.
func (v *SpeedPingValidator) Validate(download, upload, ping *int64) (Samples, error) {
	samples := []struct {
		metric Metric
		value  *int64
	}{
		{MetricDownload, download},
		{MetricUpload, upload},
		{MetricPing, ping},
	}
	for _, s := range samples {
		if v.Check(s.metric, s.value) == FieldInvalid {
			return Samples{}, &InsaneValueError{Metric: s.metric, Value: *s.value, Bounds: v.bounds(s.metric)}
		}
	}
	return Samples{DownloadSpeed: download, UploadSpeed: upload, ShortestPing: ping}, nil
}
