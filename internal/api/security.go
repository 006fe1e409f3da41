package api

import (
	"mime"
	"path/filepath"
	"strings"
)

// blockedExtensions are never accepted whatever content type the client
// claims.
var blockedExtensions = map[string]bool{
	".exe": true, ".bat": true, ".cmd": true, ".com": true, ".msi": true,
	".scr": true, ".sh": true, ".ps1": true, ".vbs": true, ".js": true,
	".jar": true, ".php": true, ".py": true, ".rb": true, ".pl": true,
	".dll": true, ".so": true, ".dylib": true,
}

// videoTypes is consulted before mime.TypeByExtension, whose table
// depends on the host's mime.types files.
var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
}

func IsBlockedExtension(filename string) bool {
	return blockedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// DetectContentType normalizes the declared type and falls back to the
// filename extension when the client sent nothing useful.
func DetectContentType(declared, filename string) string {
	ct := declared
	if idx := strings.Index(ct, ";"); idx != -1 {
		ct = ct[:idx]
	}
	ct = strings.ToLower(strings.TrimSpace(ct))
	if ct == "" || ct == "application/octet-stream" {
		ext := strings.ToLower(filepath.Ext(filename))
		if v, ok := videoTypes[ext]; ok {
			ct = v
		} else if byExt := mime.TypeByExtension(ext); byExt != "" {
			ct, _, _ = strings.Cut(byExt, ";")
		}
	}
	if ct == "" {
		return "application/octet-stream"
	}
	return ct
}

// SanitizeFilename strips directory components and characters that are
// unsafe in filenames.
func SanitizeFilename(filename string) string {
	if idx := strings.LastIndexAny(filename, `/\`); idx != -1 {
		filename = filename[idx+1:]
	}

	var sanitized strings.Builder
	for _, r := range filename {
		if r >= 32 && r != 127 && !strings.ContainsRune(`/\:*?"<>|`, r) {
			sanitized.WriteRune(r)
		}
	}

	result := strings.Trim(sanitized.String(), ". ")
	if len(result) > 255 {
		ext := filepath.Ext(result)
		if len(ext) > 16 {
			ext = ""
		}
		result = result[:255-len(ext)] + ext
	}
	if result == "" {
		return "unnamed_video"
	}
	return result
}
