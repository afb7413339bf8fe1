package core

import "errors"

var (
	// ErrMount is returned when a protocol or router is used before it is
	// mounted on a node, or mounted a second time.
	ErrMount = errors.New("mount state violation")

	// ErrConfiguration is returned when a configured protocol or router
	// name is unknown or a configuration value is out of range.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrNodeNotFound is returned for lookups of unknown node ids or names.
	ErrNodeNotFound = errors.New("node not found")
)
