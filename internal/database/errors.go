package database

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when a session has no live handle.
	ErrNotConnected = errors.New("host not connected")
	// ErrUnknownTable is returned when a table is not in the host's catalog.
	ErrUnknownTable = errors.New("unknown table")
	// ErrHostNotFound is returned when a host id is not in the registry.
	ErrHostNotFound = errors.New("host not found")
	// ErrNoHosts is returned when no configured host could be connected.
	ErrNoHosts = errors.New("no hosts connected")
	// ErrNoTable is returned when a host's catalog is empty.
	ErrNoTable = errors.New("host has no tables")
)

// ConnectError reports a failure establishing a HostSession.
type ConnectError struct {
	Host string
	// Op is the failed step: "tunnel", "open", "ping" or "catalog".
	Op  string
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %s: %v", e.Host, e.Op, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// QueryError reports a failed statement together with its SQL text.
type QueryError struct {
	Host string
	SQL  string
	Err  error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query on %s failed: %v (sql: %s)", e.Host, e.Err, e.SQL)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}
