package relay

import (
	"fmt"
	"regexp"
)

// addressPattern accepts a dot-atom or quoted local part, then either a
// domain whose last label has at least two letters or a bracketed IPv4
// literal.
var addressPattern = regexp.MustCompile(`^(([^<>()\[\]\\.,;:\s@"]+(\.[^<>()\[\]\\.,;:\s@"]+)*)|(".+"))@((\[[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\])|(([a-zA-Z\-0-9]+\.)+[a-zA-Z]{2,}))$`)

// InvalidAddressError is returned for a relay target that is not an email
// address. It is a client error.
type InvalidAddressError struct {
	Address string
}

func (e *InvalidAddressError) Error() string {
	return fmt.Sprintf("Incorrect email address provided :%s", e.Address)
}

// ValidateAddress checks a relay target override.
func ValidateAddress(address string) error {
	if !addressPattern.MatchString(address) {
		return &InvalidAddressError{Address: address}
	}
	return nil
}
