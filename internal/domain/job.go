package domain

// IndexingJob is the unit of work carried by the task queue between the
// ingestion coordinator and the indexing worker. Jobs are ephemeral and may
// be delivered more than once; the worker's compare-and-set on ImageRecord
// status makes processing idempotent.
type IndexingJob struct {
	ImageID string   `json:"image_id"`
	BlobKey string   `json:"blob_key"`
	Title   string   `json:"title,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	Attempt int      `json:"attempt"`
}
