package types

import "time"

// Form definition formats detected when a form is saved.
const (
	FormFormatJSON = "json"
	FormFormatXML  = "xml"
)

// FormMetadata is the per-form side-file written next to a downloaded form
// definition. InstanceCount tracks how many saved instances reference the
// form and is adjusted on instance save/delete.
type FormMetadata struct {
	FormID        string    `json:"formId"`
	Title         string    `json:"title"`
	Version       string    `json:"version"`
	Hash          string    `json:"hash,omitempty"`
	DownloadedAt  time.Time `json:"downloadedAt"`
	LastModified  time.Time `json:"lastModified"`
	HasMedia      bool      `json:"hasMedia"`
	MediaCount    int       `json:"mediaCount"`
	InstanceCount int       `json:"instanceCount"`
}
