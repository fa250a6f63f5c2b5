package covariance

import "encoding/base64"

// DataURI embeds data in a base64 data: URI for in-browser download links.
func DataURI(contentType string, data []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
