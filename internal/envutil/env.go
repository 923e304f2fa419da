package envutil

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads path into the environment. Variables that are already
// set win and a missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func WriteDotEnv(path string, values map[string]string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	content, err := godotenv.Marshal(values)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content+"\n"), 0o600)
}

// EncodeSecret prepares a multi-line secret for a single env line: escaped
// "\n" sequences become real newlines and the result is base64 encoded.
func EncodeSecret(raw string) string {
	restored := strings.ReplaceAll(raw, `\n`, "\n")
	return base64.StdEncoding.EncodeToString([]byte(restored))
}

// Secret reads a secret either in plain text from plainKey or base64
// encoded from b64Key. The plain value wins when both are set.
func Secret(plainKey, b64Key string) (string, error) {
	if v := os.Getenv(plainKey); v != "" {
		return strings.ReplaceAll(v, `\n`, "\n"), nil
	}
	encoded := strings.TrimSpace(os.Getenv(b64Key))
	if encoded == "" {
		return "", nil
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", b64Key, err)
	}
	return string(decoded), nil
}
