package tables

import (
	"time"
)

// ListingRow is one row of the listings table written to blob storage.
// The listing payload is kept verbatim.
type ListingRow struct {
	Dataset string `parquet:"dataset"`
	Ordinal int64  `parquet:"ordinal"` // position in the fetched batch

	Payload       []byte `parquet:"payload"`
	PayloadSHA256 string `parquet:"payload_sha256"`

	IngestedAt time.Time `parquet:"ingested_at,timestamp(millisecond)"`
}

// TableName returns the canonical table name.
func (ListingRow) TableName() string {
	return "listings"
}

// Format selects the on-disk encoding of a dataset.
type Format string

const (
	FormatParquet  Format = "parquet"
	FormatJSONLZst Format = "jsonl.zst"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatParquet, FormatJSONLZst:
		return Format(s), nil
	default:
		return "", ErrUnknownFormat
	}
}

// Extension returns the object suffix for the format.
func (f Format) Extension() string {
	return "." + string(f)
}

// SchemaVersion returns the version of the schema.
// Increment this when making breaking changes.
const SchemaVersion = "1.0.0"
