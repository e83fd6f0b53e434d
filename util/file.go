package util

import (
	"os"
	"strings"
)

var compressionSuffixes = []string{".gz", ".zst", ".zstd"}

// BaseName returns the last path element unchanged.
func BaseName(path string) string {
	arr := strings.Split(path, string(os.PathSeparator))
	return arr[len(arr)-1]
}

// StripCompression removes a known compression extension and reports which one.
func StripCompression(name string) (string, string) {
	for _, s := range compressionSuffixes {
		if strings.HasSuffix(name, s) {
			return strings.TrimSuffix(name, s), s
		}
	}
	return name, ""
}
