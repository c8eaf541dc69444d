package domain

import (
	"fmt"
	"strings"
)

// MetadataSchemaVersion is written on every checkout session created by this
// service. Sessions without a version predate it and are read as version 1.
const MetadataSchemaVersion = "1"

// Metadata keys as stored on the payment session.
const (
	MetaSchemaVersion = "schema_version"
	MetaJobID         = "job_id"
	MetaOriginalPath  = "dropbox_path"
	MetaOriginalURL   = "image_url"
	MetaRoomType      = "room_type"
	MetaStyle         = "style"
	MetaCustomerEmail = "customer_email"
)

// JobMetadata is the staging join key carried opaque through the payment
// provider. OriginalPath and OriginalURL are required; everything else is
// optional on read.
type JobMetadata struct {
	Version      string
	JobID        string
	OriginalPath string
	OriginalURL  string
	RoomType     string
	Style        string
}

// Map encodes the bundle as provider metadata. Every value is a string, which
// is what the payment provider accepts.
func (m JobMetadata) Map() map[string]string {
	version := m.Version
	if version == "" {
		version = MetadataSchemaVersion
	}
	return map[string]string{
		MetaSchemaVersion: version,
		MetaJobID:         m.JobID,
		MetaOriginalPath:  m.OriginalPath,
		MetaOriginalURL:   m.OriginalURL,
		MetaRoomType:      m.RoomType,
		MetaStyle:         m.Style,
	}
}

// MetadataFromMap decodes provider metadata. Values are taken verbatim apart
// from surrounding whitespace.
func MetadataFromMap(values map[string]string) JobMetadata {
	get := func(key string) string {
		return strings.TrimSpace(values[key])
	}
	return JobMetadata{
		Version:      get(MetaSchemaVersion),
		JobID:        get(MetaJobID),
		OriginalPath: get(MetaOriginalPath),
		OriginalURL:  get(MetaOriginalURL),
		RoomType:     get(MetaRoomType),
		Style:        get(MetaStyle),
	}
}

// Validate reports ErrMissingMetadata when the bundle cannot drive
// fulfillment.
func (m JobMetadata) Validate() error {
	switch m.Version {
	case "", MetadataSchemaVersion:
	default:
		return fmt.Errorf("%w: unsupported schema version %q", ErrMissingMetadata, m.Version)
	}
	var missing []string
	if m.OriginalPath == "" {
		missing = append(missing, MetaOriginalPath)
	}
	if m.OriginalURL == "" {
		missing = append(missing, MetaOriginalURL)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingMetadata, strings.Join(missing, ", "))
	}
	return nil
}

// Job reconstructs the staging job from the bundle.
func (m JobMetadata) Job(status JobStatus) StagingJob {
	return StagingJob{
		ID:           m.JobID,
		RoomType:     m.RoomType,
		Style:        m.Style,
		OriginalPath: m.OriginalPath,
		OriginalURL:  m.OriginalURL,
		Status:       status,
	}
}
