// Package openjd writes the stdout line protocol understood by Open Job Description
// runtimes: failure reports and environment updates for later session actions.
package openjd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf16"
)

const (
	failPrefix     = "openjd_fail: "
	envPrefix      = "openjd_env: "
	unsetEnvPrefix = "openjd_unset_env: "
)

// reports a fatal error to the runtime
// newlines are folded so the message stays on one protocol line
func Fail(w io.Writer, msg string) error {
	msg = strings.ReplaceAll(msg, "\n", " ")
	_, err := fmt.Fprintf(w, "%s%s\n", failPrefix, msg)
	return err
}

// sets KEY=VALUE in the session environment
func SetEnv(w io.Writer, key, value string) error {
	quoted, err := quoteASCII(key + "=" + value)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s%s\n", envPrefix, quoted)
	return err
}

func UnsetEnv(w io.Writer, key string) error {
	_, err := fmt.Fprintf(w, "%s%s\n", unsetEnvPrefix, key)
	return err
}

// JSON string literal with every non-ASCII rune written as a \u escape
func quoteASCII(s string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return "", err
	}
	encoded := strings.TrimSuffix(buf.String(), "\n")

	var out strings.Builder
	for _, r := range encoded {
		switch {
		case r < 0x80:
			out.WriteRune(r)
		case r > 0xffff:
			hi, lo := utf16.EncodeRune(r)
			fmt.Fprintf(&out, `\u%04x\u%04x`, hi, lo)
		default:
			fmt.Fprintf(&out, `\u%04x`, r)
		}
	}
	return out.String(), nil
}
