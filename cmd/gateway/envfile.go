package main

import (
	"errors"
	"os"
	"strings"
)

// The gateway reads a dotenv file before configuration so deployments can
// ship settings next to the binary. AGENTGATE_ENV_FILE overrides the
// default ./.env location; a missing file is not an error.
const gatewayEnvFilePathEnv = "AGENTGATE_ENV_FILE"

func loadEnvFile() (string, int, error) {
	path := strings.TrimSpace(os.Getenv(gatewayEnvFilePathEnv))
	if path == "" {
		path = ".env"
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return path, 0, nil
		}
		return path, 0, err
	}

	loaded := 0
	for _, line := range strings.Split(string(content), "\n") {
		key, value, ok := parseEnvLine(line)
		if !ok {
			continue
		}
		// Real environment wins over file values.
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if os.Setenv(key, value) == nil {
			loaded++
		}
	}
	return path, loaded, nil
}

// parseEnvLine handles blank lines, comments, "export " prefixes and quoted
// values. Double quotes expand \n escapes; single quotes stay literal.
func parseEnvLine(line string) (string, string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	line = strings.TrimSpace(strings.TrimPrefix(line, "export "))

	key, raw, found := strings.Cut(line, "=")
	key = strings.TrimSpace(key)
	if !found || key == "" {
		return "", "", false
	}

	value := strings.TrimSpace(raw)
	switch {
	case len(value) >= 2 && strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`):
		value = strings.ReplaceAll(value[1:len(value)-1], `\n`, "\n")
	case len(value) >= 2 && strings.HasPrefix(value, "'") && strings.HasSuffix(value, "'"):
		value = value[1 : len(value)-1]
	}
	return key, value, true
}
