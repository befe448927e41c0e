// Package secret holds sensitive configuration values such as database passwords.
package secret

import (
	"encoding/json"
	"fmt"
	"os"
)

type String string

const redacted = "REDACTED"

// String implements fmt.Stringer and redacts the sensitive value.
func (s String) String() string {
	return redacted
}

// GoString implements fmt.GoStringer and redacts the sensitive value.
func (s String) GoString() string {
	return redacted
}

// Raw returns the sensitive value as a string.
func (s String) Raw() string {
	return string(s)
}

func (s String) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

// UnmarshalJSON accepts either a plain JSON string or a reference to an
// environment variable in the form {"env": "NAME"}, so connection files need
// not carry passwords.
func (s *String) UnmarshalJSON(b []byte) error {
	var plain string
	if err := json.Unmarshal(b, &plain); err == nil {
		*s = String(plain)
		return nil
	}

	var ref struct {
		Env string `json:"env"`
	}
	if err := json.Unmarshal(b, &ref); err != nil {
		return fmt.Errorf("secret must be a string or an env reference: %w", err)
	}
	if ref.Env == "" {
		return fmt.Errorf("secret env reference has no name")
	}
	v, ok := os.LookupEnv(ref.Env)
	if !ok {
		return fmt.Errorf("secret env reference %q is not set", ref.Env)
	}
	*s = String(v)
	return nil
}
