package types

import (
	"fmt"
	"strconv"
	"strings"
)

// MajorVersion extracts the major component of a schema version string.
func MajorVersion(version string) (int, error) {
	head, _, _ := strings.Cut(version, ".")
	major, err := strconv.Atoi(head)
	if err != nil {
		return 0, fmt.Errorf("malformed schema version %q: %w", version, err)
	}
	return major, nil
}

// CheckSchemaVersion rejects facts written by an unknown major version.
// Additive minor changes pass; a major bump does not.
func CheckSchemaVersion(version string) error {
	got, err := MajorVersion(version)
	if err != nil {
		return err
	}
	want, err := MajorVersion(SchemaVersion)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("unsupported schema major version %d (reader supports %d)", got, want)
	}
	return nil
}
