package economy

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks.
var (
	ErrDataIntegrity = errors.New("data integrity violation")
	ErrConfiguration = errors.New("invalid configuration")
)

// DataIntegrityError reports an invariant violation for a single product. It is
// fatal to that product's update only.
type DataIntegrityError struct {
	ProductID string
	Reason    string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("product %q: %s", e.ProductID, e.Reason)
}

func (e *DataIntegrityError) Unwrap() error { return ErrDataIntegrity }

func integrityErrorf(productID, format string, args ...any) error {
	return &DataIntegrityError{ProductID: productID, Reason: fmt.Sprintf(format, args...)}
}

// ConfigurationError reports a malformed modifier or engine setting. Modifiers
// are rejected with it at insertion, before they reach the engine.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }
