package store

import (
	"testing"

	"github.com/pixperk/objmutex/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResourceURL(t *testing.T) {
	tests := []struct {
		raw    string
		bucket string
		key    string
	}{
		{"s3://farm/jobs/42/out.exr", "farm", "jobs/42/out.exr"},
		{"s3://farm//leading/slashes", "farm", "leading/slashes"},
		{"S3://farm/k", "farm", "k"},
		{"redis://queue/a#b?c", "queue", "a#b?c"},
	}

	for _, tt := range tests {
		u, err := ParseResourceURL(tt.raw)
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.bucket, u.Bucket)
		assert.Equal(t, tt.key, u.Key)
	}
}

func TestParseResourceURLInvalid(t *testing.T) {
	for _, raw := range []string{
		"",
		"farm/key",
		"://farm/key",
		"s3://",
		"s3:///key",
		"s3://farm",
		"s3://farm/",
		"1s3://farm/key",
	} {
		_, err := ParseResourceURL(raw)
		assert.ErrorIs(t, err, types.ErrInvalidResourceURL, raw)
	}
}

func TestResourceURLString(t *testing.T) {
	u, err := ParseResourceURL("s3://farm/jobs/a.exr")
	require.NoError(t, err)

	assert.Equal(t, "s3://farm/jobs/a.exr", u.String())
	assert.Equal(t, "s3://farm/jobs/a.exr.lock", u.Object("jobs/a.exr.lock"))
}

func TestCheckScheme(t *testing.T) {
	u, err := ParseResourceURL("gs://farm/key")
	require.NoError(t, err)

	err = u.CheckScheme(BackendS3)
	require.ErrorIs(t, err, types.ErrSchemeMismatch)
	assert.Contains(t, err.Error(), "input object gs://farm/key is not a s3:// URL")

	s3, err := ParseResourceURL("s3://farm/key")
	require.NoError(t, err)
	assert.NoError(t, s3.CheckScheme(BackendS3))
}
