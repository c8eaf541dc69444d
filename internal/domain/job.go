package domain

// JobStatus enumerates staging job lifecycle states.
type JobStatus string

const (
	JobStatusSubmitted JobStatus = "submitted"
	JobStatusPreviewed JobStatus = "previewed"
	JobStatusPaid      JobStatus = "paid"
	JobStatusFulfilled JobStatus = "fulfilled"
	JobStatusFailed    JobStatus = "failed"
)

// StagingJob is one end-to-end request to preview and, once paid, deliver a
// rendered room image. It is never persisted by this service; between the
// preview and fulfillment stages it travels as payment session metadata.
type StagingJob struct {
	ID           string
	RoomType     string
	Style        string
	OriginalPath string
	OriginalURL  string
	PreviewPath  string
	PreviewURL   string
	FinalPath    string
	Status       JobStatus
}

// Metadata returns the join-key bundle that must reappear on the payment
// session.
func (j StagingJob) Metadata() JobMetadata {
	return JobMetadata{
		Version:      MetadataSchemaVersion,
		JobID:        j.ID,
		OriginalPath: j.OriginalPath,
		OriginalURL:  j.OriginalURL,
		RoomType:     j.RoomType,
		Style:        j.Style,
	}
}
