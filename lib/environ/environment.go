package environ

import (
	"fmt"
	"os"
	"strings"
)

func MustGetEnv(envVars ...string) error {
	_, err := Require(envVars...)
	return err
}

// Require returns the values of envVars, or an error naming every one of them that is unset.
func Require(envVars ...string) (map[string]string, error) {
	values := make(map[string]string, len(envVars))
	var invalidParts []string
	for _, envVar := range envVars {
		value := os.Getenv(envVar)
		if value == "" {
			invalidParts = append(invalidParts, envVar)
			continue
		}

		values[envVar] = value
	}

	if len(invalidParts) > 0 {
		return nil, fmt.Errorf("required environment variables %q are not set", strings.Join(invalidParts, ", "))
	}

	return values, nil
}
