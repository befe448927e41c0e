package modellr

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/circleci/modellr/db"
)

// DefaultAlias names the instance used when no alias is configured or asked for.
const DefaultAlias = "default"

type ConnectionConfig struct {
	// Alias is optional, an empty alias takes the alias of the config before it
	Alias string `json:"alias"`
	db.Config
}

// Normalize stamps every config with its alias. An empty alias carries forward from the
// previous config, the first falls back to DefaultAlias. When two configs share an alias
// the later one replaces the earlier but keeps its position.
func Normalize(conns []ConnectionConfig) ([]ConnectionConfig, error) {
	if len(conns) == 0 {
		return nil, ErrNoConnections
	}

	out := make([]ConnectionConfig, 0, len(conns))
	positions := map[string]int{}
	alias := DefaultAlias
	for _, c := range conns {
		if c.Alias != "" {
			alias = c.Alias
		}
		c.Alias = alias

		if i, ok := positions[alias]; ok {
			out[i] = c
			continue
		}
		positions[alias] = len(out)
		out = append(out, c)
	}
	return out, nil
}

// ParseConnections decodes either a single connection object or an array of them.
func ParseConnections(b []byte) ([]ConnectionConfig, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, ErrNoConnections
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()

	if b[0] == '[' {
		var conns []ConnectionConfig
		if err := dec.Decode(&conns); err != nil {
			return nil, fmt.Errorf("invalid connections: %w", err)
		}
		if err := trailing(dec); err != nil {
			return nil, fmt.Errorf("invalid connections: %w", err)
		}
		return conns, nil
	}

	c := ConnectionConfig{}
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("invalid connection: %w", err)
	}
	if err := trailing(dec); err != nil {
		return nil, fmt.Errorf("invalid connection: %w", err)
	}
	return []ConnectionConfig{c}, nil
}

// trailing fails if dec holds anything after the first value.
func trailing(dec *json.Decoder) error {
	_, err := dec.Token()
	switch {
	case errors.Is(err, io.EOF):
		return nil
	case err != nil:
		return err
	}
	return errors.New("unexpected data after the connection config")
}
