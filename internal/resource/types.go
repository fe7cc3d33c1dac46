package resource

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ID is a record identifier. The API sends numbers while forms and URLs carry
// strings, so both decode.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	s, err := looseString(b)
	if err != nil {
		return fmt.Errorf("resource: decode id: %w", err)
	}
	*id = ID(s)
	return nil
}

func (id ID) String() string { return string(id) }

// Numeric is a number the API may send quoted or bare.
type Numeric string

func (n *Numeric) UnmarshalJSON(b []byte) error {
	s, err := looseString(b)
	if err != nil {
		return fmt.Errorf("resource: decode number: %w", err)
	}
	*n = Numeric(s)
	return nil
}

func looseString(b []byte) (string, error) {
	trimmed := bytes.TrimSpace(b)
	switch {
	case len(trimmed) == 0 || string(trimmed) == "null":
		return "", nil
	case trimmed[0] == '"':
		var s string
		err := json.Unmarshal(trimmed, &s)
		return s, err
	default:
		var n json.Number
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return "", err
		}
		return n.String(), nil
	}
}
