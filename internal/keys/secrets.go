package keys

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/joho/godotenv"
)

// LoadSecretsFile reads KEY=value lines, with optional "export " prefixes
// and quotes. The whole file may be base64-encoded.
func LoadSecretsFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file: %w", err)
	}
	return ParseSecrets(data)
}

func ParseSecrets(data []byte) (map[string]string, error) {
	content := string(data)
	if decoded, ok := decodeBase64(content); ok {
		content = decoded
	}

	secrets, err := godotenv.Unmarshal(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse secrets: %w", err)
	}
	return secrets, nil
}

// decodeBase64 accepts content only if it decodes to text that looks like an
// assignment list.
func decodeBase64(content string) (string, bool) {
	compact := strings.Join(strings.Fields(content), "")
	if compact == "" || (strings.Contains(compact, "=") && !strings.HasSuffix(compact, "=")) {
		return "", false
	}

	decoded, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return "", false
	}
	if !utf8.Valid(decoded) || !strings.Contains(string(decoded), "=") {
		return "", false
	}
	return string(decoded), true
}
