// Package model defines the core domain types for partyvc.
package model

import "errors"

// MaxCapacity bounds the advisory member count of a session. Voice platforms
// reject user limits above 99.
const MaxCapacity = 99

var ErrCapacity = errors.New("capacity out of range")

// ValidateCapacity checks an advisory member count. Zero means unlimited.
func ValidateCapacity(capacity int) error {
	if capacity < 0 || capacity > MaxCapacity {
		return ErrCapacity
	}
	return nil
}
