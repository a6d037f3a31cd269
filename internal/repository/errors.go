// Package repository defines error types that are reused across multiple
// repositories.  These sentinel values allow the service layer to tell a
// missing row from a lost conditional write without inspecting driver
// errors.
package repository

import "errors"

// ErrNotFound is returned when a lookup by primary key yields no rows.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller asks for a booking that belongs
// to another user.  Handlers translate this into a 404 so that booking IDs
// cannot be probed.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a conditional counter update cannot be
// applied, such as decrementing available seats below zero.
var ErrConflict = errors.New("conflict")
