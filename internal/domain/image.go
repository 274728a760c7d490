package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// ImageStatus represents the indexing lifecycle status of an image record.
// Values include ImageStatusPending, ImageStatusIndexing, ImageStatusIndexed,
// and ImageStatusFailed.
type ImageStatus string

const (
	ImageStatusPending  ImageStatus = "pending"
	ImageStatusIndexing ImageStatus = "indexing"
	ImageStatusIndexed  ImageStatus = "indexed"
	ImageStatusFailed   ImageStatus = "failed"
)

// IsTerminal reports whether the status admits no further automatic
// transitions. Indexed and Failed records are only moved by an explicit
// operator re-index.
func (s ImageStatus) IsTerminal() bool {
	return s == ImageStatusIndexed || s == ImageStatusFailed
}

// StringArray is a custom type for storing string arrays as JSON in the database.
type StringArray []string

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the slice.
//   - error: non-nil if marshaling fails.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = StringArray{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan StringArray")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, a)
}

// ImageRecord is the metadata row for an uploaded image. The metadata store
// is the source of truth for Status; the vector index carries an entry for
// an image iff Status is indexed, and that is enforced by write ordering in
// the indexing worker, not by cross-store transactions.
type ImageRecord struct {
	ID           string      `gorm:"type:text;primaryKey" json:"id"`
	Title        string      `gorm:"type:text" json:"title,omitempty"`
	Tags         StringArray `gorm:"type:text" json:"tags"`
	BlobKey      string      `gorm:"type:text;not null" json:"blob_key"`
	ContentHash  string      `gorm:"type:text;index:idx_images_content_hash" json:"content_hash,omitempty"`
	Width        int         `json:"width,omitempty"`
	Height       int         `json:"height,omitempty"`
	Format       string      `gorm:"type:text" json:"format,omitempty"`
	Status       ImageStatus `gorm:"type:text;index:idx_images_status;default:pending" json:"status"`
	AttemptCount int         `gorm:"default:0" json:"attempt_count"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `gorm:"index:idx_images_updated" json:"updated_at"`
}

// TableName returns the database table name for ImageRecord.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (ImageRecord) TableName() string {
	return "images"
}
