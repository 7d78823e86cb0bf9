package openpush

import (
	"bytes"
	"fmt"
)

// Bool is a boolean that the relay encodes as the integers 0 and 1.
type Bool bool

func (b Bool) MarshalJSON() ([]byte, error) {
	if b {
		return []byte("1"), nil
	}

	return []byte("0"), nil
}

func (b *Bool) UnmarshalJSON(data []byte) error {
	switch {
	case bytes.Equal(data, []byte("0")), bytes.Equal(data, []byte("false")):
		*b = false

	case bytes.Equal(data, []byte("1")), bytes.Equal(data, []byte("true")):
		*b = true

	default:
		return fmt.Errorf("unexpected boolean value %q", data)
	}

	return nil
}

func (b Bool) String() string {
	if b {
		return "true"
	}

	return "false"
}
