package job

import "strings"

// Characters that are unsafe in filenames on at least one supported
// filesystem.
const unsafeFilenameChars = `<>:"/\|?*`

// SanitizeFilename strips filesystem-unsafe characters from a title so it can
// be used as an artifact name. The result may be empty; callers fall back to
// a generated id in that case.
func SanitizeFilename(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		if strings.ContainsRune(unsafeFilenameChars, r) {
			return -1
		}
		return r
	}, name)
	return strings.TrimSpace(cleaned)
}
