package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitRef(t *testing.T) {
	b, k, err := SplitRef("s3://catalog/2026/prices.pdf", "default")
	require.NoError(t, err)
	assert.Equal(t, "catalog", b)
	assert.Equal(t, "2026/prices.pdf", k)

	b, k, err = SplitRef("/promo/banner.jpg", "default")
	require.NoError(t, err)
	assert.Equal(t, "default", b)
	assert.Equal(t, "promo/banner.jpg", k)

	_, _, err = SplitRef("s3://catalog", "default")
	assert.Error(t, err)
	_, _, err = SplitRef("  ", "default")
	assert.Error(t, err)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "image/png", ContentType("image/png", "x.bin"))
	assert.Equal(t, "application/pdf", ContentType("binary/octet-stream", "prices.pdf"))
	assert.Equal(t, "application/octet-stream", ContentType("", "blob"))
}

func TestNewS3RequiresBucket(t *testing.T) {
	_, err := NewS3(S3Config{})
	assert.Error(t, err)

	s, err := NewS3(S3Config{Bucket: "media", Endpoint: "http://localhost:9000", PathStyle: true})
	require.NoError(t, err)
	assert.Equal(t, "media", s.bucket)
}
