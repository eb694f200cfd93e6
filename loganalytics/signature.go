// Package loganalytics implements the Azure Log Analytics HTTP Data
// Collector API: SharedKey request signing and batch submission of JSON
// records to a workspace custom table.
package loganalytics

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// BuildSignature computes the value of the Authorization header for one
// Data Collector API submission. The string to sign is
// "METHOD\nCONTENT_LENGTH\nCONTENT_TYPE\nx-ms-date:DATE\nRESOURCE", hashed
// with HMAC-SHA256 keyed by the base64-decoded workspace shared key. The
// function is pure: identical inputs always produce the identical header.
func BuildSignature(workspaceID string, sharedKey []byte, date string, contentLength int, method string, contentType string, resource string) string {
	stringToSign := fmt.Sprintf("%s\n%d\n%s\nx-ms-date:%s\n%s", method, contentLength, contentType, date, resource)
	mac := hmac.New(sha256.New, sharedKey)
	mac.Write([]byte(stringToSign))
	encoded := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("SharedKey %s:%s", workspaceID, encoded)
}
