package openjd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFail(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Fail(&buf, "Input s3 object http://b/k is not an s3:// URL\nsecond line"))
	assert.Equal(t, "openjd_fail: Input s3 object http://b/k is not an s3:// URL second line\n", buf.String())
}

func TestSetEnv(t *testing.T) {
	cases := []struct {
		key, value, want string
	}{
		{"PATH", "/usr/bin:/bin", `openjd_env: "PATH=/usr/bin:/bin"` + "\n"},
		{"QUOTE", `say "hi"`, `openjd_env: "QUOTE=say \"hi\""` + "\n"},
		{"HTML", "<a&b>", `openjd_env: "HTML=<a&b>"` + "\n"},
		{"MULTI", "a\nb\tc", `openjd_env: "MULTI=a\nb\tc"` + "\n"},
		{"UNICODE", "café", `openjd_env: "UNICODE=caf\u00e9"` + "\n"},
		{"EMOJI", "\U0001F600", `openjd_env: "EMOJI=\ud83d\ude00"` + "\n"},
	}

	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, SetEnv(&buf, tc.key, tc.value))
			assert.Equal(t, tc.want, buf.String())
		})
	}
}

func TestUnsetEnv(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, UnsetEnv(&buf, "CONDA_PREFIX"))
	assert.Equal(t, "openjd_unset_env: CONDA_PREFIX\n", buf.String())
}
