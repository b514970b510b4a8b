// Package component provides the Component type used for the app status document.
package component

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Component is a status document with a content-based checksum.
type Component struct {
	ID       string      `json:"id"`
	Type     string      `json:"type"`
	Checksum string      `json:"checksum"`
	Data     interface{} `json:"data"`
}

// New creates a new component with automatic checksum calculation.
// Data that cannot be marshalled gets an empty checksum.
func New(componentType string, data interface{}) Component {
	return Component{
		ID:       componentType,
		Type:     componentType,
		Checksum: Checksum(data),
		Data:     data,
	}
}

// Checksum returns the hex SHA-256 of the JSON encoding of data.
func Checksum(data interface{}) string {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	hash := sha256.Sum256(jsonData)
	return hex.EncodeToString(hash[:])
}

// ETag returns the checksum quoted for use as an HTTP entity tag.
func (c Component) ETag() string {
	return `"` + c.Checksum + `"`
}
