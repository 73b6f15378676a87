package message

import (
	"path/filepath"
	"strings"
)

// imageTypes maps lower-case file extensions to inline image media types.
var imageTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".svg":  "image/svg+xml",
	".svgz": "image/svg+xml",
}

// ImageType returns the media type for an inline image file name. Unknown
// extensions get application/octet-stream.
func ImageType(name string) string {
	if t, ok := imageTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return t
	}
	return TypeOctetStream
}
