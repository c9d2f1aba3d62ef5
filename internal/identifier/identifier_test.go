package identifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	cases := []string{
		"/etc/hosts",
		"/etc/nginx/nginx.conf",
		"vim",
		"",
		"/path/with spaces/and-dashes_underscores",
		"/path/with/üñìçødé",
	}

	for _, key := range cases {
		id := Encode(key)
		got, err := Decode(id)
		require.NoError(t, err)
		assert.Equal(t, key, got)
	}
}

func TestEncodeIsFilesystemSafe(t *testing.T) {
	id := Encode("/etc/hosts")
	for _, r := range id.String() {
		assert.True(t, (r >= 'A' && r <= 'Z') || (r >= '2' && r <= '7') || r == '=',
			"unexpected character %q in id %q", r, id)
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	_, err := Decode(ID("not valid base32!!"))
	require.Error(t, err)
}

func TestEncodeCaseInsensitiveDecode(t *testing.T) {
	id := Encode("/etc/hosts")
	lower := ID(toLower(id.String()))

	got, err := Decode(lower)
	require.NoError(t, err)
	assert.Equal(t, "/etc/hosts", got)
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}

	return string(b)
}
