package storekit

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// Extensions that the stdlib mime tables resolve inconsistently across
// platforms; pinned here so FileInfo.ContentType is stable.
var extensionToMIME = map[string]string{
	".txt":     "text/plain",
	".csv":     "text/csv",
	".md":      "text/markdown",
	".json":    "application/json",
	".xml":     "application/xml",
	".yaml":    "application/yaml",
	".yml":     "application/yaml",
	".parquet": "application/vnd.apache.parquet",
	".gz":      "application/gzip",
	".tar":     "application/x-tar",
	".zip":     "application/zip",
	".pdf":     "application/pdf",
	".jpg":     "image/jpeg",
	".jpeg":    "image/jpeg",
	".png":     "image/png",
	".svg":     "image/svg+xml",
}

// GuessContentType determines a file's MIME type from its path, with a
// content sniff as fallback when data is available. Returns
// "application/octet-stream" when nothing matches.
func GuessContentType(path string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := extensionToMIME[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	if len(data) > 0 {
		return http.DetectContentType(data)
	}
	return "application/octet-stream"
}
