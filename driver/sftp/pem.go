package sftp

import (
	"fmt"
	"os"
	"strings"
)

// SanitizePEM repairs PEM key material whose newlines were flattened
// in transit, a common casualty of environment variables and JSON
// config. A valid PEM block splits on "-----" into exactly five
// parts:
//
//	"" | BEGIN marker | payload | END marker | trailing
//
// Inside the payload every line separator was replaced by some single
// character (space, \t, a literal "\n", ...). If exactly one distinct
// non-base64 character remains, it must be that stand-in and is
// turned back into a newline. Zero means the material is intact; more
// than one means the key is corrupt and the repair fails loudly
// rather than guessing.
func SanitizePEM(material string) (string, error) {
	parts := strings.Split(material, "-----")
	if len(parts) != 5 {
		return "", fmt.Errorf("malformed PEM: expected 5 dash-delimited parts, got %d", len(parts))
	}
	payload := parts[2]

	distinct := make(map[rune]struct{})
	for _, r := range payload {
		if !isBase64Rune(r) && r != '\n' && r != '\r' {
			distinct[r] = struct{}{}
		}
	}
	switch len(distinct) {
	case 0:
		return material, nil
	case 1:
		var standIn rune
		for r := range distinct {
			standIn = r
		}
		parts[2] = strings.ReplaceAll(payload, string(standIn), "\n")
		return strings.Join(parts, "-----"), nil
	default:
		return "", fmt.Errorf("malformed PEM: %d distinct non-base64 characters in payload", len(distinct))
	}
}

func isBase64Rune(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return true
	case r == '+' || r == '/' || r == '=':
		return true
	}
	return false
}

func readKeyFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read private key file: %w", err)
	}
	return data, nil
}
