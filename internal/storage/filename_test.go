package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "photo.jpg", "photo.jpg"},
		{"uppercase extension", "Photo.JPG", "Photo.jpg"},
		{"path traversal", "../../etc/passwd", "passwd"},
		{"windows path", `C:\Users\me\cat.png`, "cat.png"},
		{"special characters", "my photo!@#$.jpg", "my_photo.jpg"},
		{"spaces collapse", "a   b   c.png", "a_b_c.png"},
		{"empty", "", "unnamed_file"},
		{"only junk", "!!!.jpg", "unnamed_file.jpg"},
		{"dotted stem", "archive.tar.gz", "archive_tar.gz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, SanitizeFilename(tt.in))
		})
	}
}

func TestSanitizeFilenameIdempotent(t *testing.T) {
	inputs := []string{
		"photo.jpg",
		"../../etc/passwd",
		"my photo!@#$.jpg",
		"weird\x00name\x1f.png",
		strings.Repeat("a", 300) + ".jpeg",
		"",
	}
	for _, in := range inputs {
		once := SanitizeFilename(in)
		require.Equal(t, once, SanitizeFilename(once), "input %q", in)
	}
}

func TestSanitizeFilenameCapsLength(t *testing.T) {
	long := strings.Repeat("x", 400) + ".webp"
	got := SanitizeFilename(long)
	require.LessOrEqual(t, len(got), 255)
	require.True(t, strings.HasSuffix(got, ".webp"))

	// An extension that alone exceeds the cap must truncate, not panic.
	longExt := "photo." + strings.Repeat("b", 300)
	got = SanitizeFilename(longExt)
	require.LessOrEqual(t, len(got), 255)
	require.NotEmpty(t, got)
	require.Equal(t, got, SanitizeFilename(got))
}

func TestSanitizeFilenameStripsTraversal(t *testing.T) {
	got := SanitizeFilename("..\\..\\boot.ini")
	require.NotContains(t, got, "..")
	require.NotContains(t, got, "/")
	require.NotContains(t, got, `\`)
}

func TestContentHashDeterministic(t *testing.T) {
	data := []byte("test content")
	require.Equal(t, ContentHash(data), ContentHash(data))
	require.NotEqual(t, ContentHash(data), ContentHash([]byte("other content")))
	require.Len(t, ContentHash(data), 64)
}
