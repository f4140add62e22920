package ingest

import (
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// ClientVersionGate rejects clients that are too old or unknown.
type ClientVersionGate struct {
	minimum *semver.Version
	names   map[string]struct{}
}

// NewClientVersionGate returns a gate accepting versions >= minVersion from
// the given client names.
func NewClientVersionGate(minVersion string, names []string) (*ClientVersionGate, error) {
	minimum, err := semver.NewVersion(minVersion)
	if err != nil {
		return nil, fmt.Errorf("invalid minimum client version %q: %w", minVersion, err)
	}
	if len(names) == 0 {
		return nil, errors.New("client names cannot be empty")
	}

	allowed := make(map[string]struct{}, len(names))
	for _, n := range names {
		allowed[n] = struct{}{}
	}
	return &ClientVersionGate{minimum: minimum, names: allowed}, nil
}

// Check fails with ErrUnsupportedClientVersion when version is missing,
// unparsable or below the minimum, or when name is not allow-listed.
func (g *ClientVersionGate) Check(version, name string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("%w: cannot parse %q", ErrUnsupportedClientVersion, version)
	}
	if v.LessThan(g.minimum) {
		return fmt.Errorf("%w: %s is older than %s", ErrUnsupportedClientVersion, v, g.minimum)
	}
	if _, ok := g.names[name]; !ok {
		return fmt.Errorf("%w: unknown client %q", ErrUnsupportedClientVersion, name)
	}
	return nil
}
