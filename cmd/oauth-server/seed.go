package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/giantswarm/oauth-core/storage"
)

// loadSeed reads clients and users from a YAML file. Unknown keys are
// rejected so a typo does not silently drop a redirect URI.
func loadSeed(path string) (*storage.Seed, error) {
	if path == "" {
		return &storage.Seed{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	seed := &storage.Seed{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(seed); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}

	for i, c := range seed.Clients {
		if c == nil || c.ID == "" {
			return nil, fmt.Errorf("seed file %s: client %d has no id", path, i)
		}
	}
	for i, u := range seed.Users {
		if u == nil || u.Email == "" {
			return nil, fmt.Errorf("seed file %s: user %d has no email", path, i)
		}
	}
	return seed, nil
}
