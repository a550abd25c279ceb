package discovery

import "errors"

// ErrNoServiceName is returned when a resolution is requested for an empty
// service name. This is a caller bug, not a transient condition.
var ErrNoServiceName = errors.New("service name must not be empty")

// ErrNoMatchingPort is returned when a subset exposes multiple ports, a
// primary port name is configured, and none of the ports carries that name.
// The configuration cannot disambiguate the subset, so the resolution fails
// instead of picking a port at random.
var ErrNoMatchingPort = errors.New("no endpoint port matches the configured primary port name")
