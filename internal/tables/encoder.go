package tables

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/parquet-go/parquet-go"
)

// ErrUnknownFormat is returned for an unsupported encoding.
var ErrUnknownFormat = errors.New("unknown dataset format")

// Output is an encoded dataset ready for upload.
type Output struct {
	Bytes    []byte
	Checksum string // checksum of Bytes
	RowCount int64
	Format   Format
}

// Encoder turns a batch of records into a single dataset object.
type Encoder struct {
	format      Format
	compression string // parquet only: "snappy" | "zstd" | "none"
}

// NewEncoder creates an encoder for the given format.
func NewEncoder(format Format, compression string) (*Encoder, error) {
	if _, err := ParseFormat(string(format)); err != nil {
		return nil, fmt.Errorf("%w: %q", err, format)
	}
	if compression == "" {
		compression = "snappy"
	}
	return &Encoder{format: format, compression: compression}, nil
}

// Format returns the encoder's output format.
func (e *Encoder) Format() Format {
	return e.format
}

// Encode serializes records for the named dataset.
func (e *Encoder) Encode(dataset string, records []json.RawMessage, ingestedAt time.Time) (*Output, error) {
	var (
		data []byte
		err  error
	)
	switch e.format {
	case FormatParquet:
		data, err = e.encodeParquet(dataset, records, ingestedAt)
	case FormatJSONLZst:
		data, err = encodeJSONLZst(records)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, e.format)
	}
	if err != nil {
		return nil, err
	}

	return &Output{
		Bytes:    data,
		Checksum: ComputeChecksum(data),
		RowCount: int64(len(records)),
		Format:   e.format,
	}, nil
}

func (e *Encoder) encodeParquet(dataset string, records []json.RawMessage, ingestedAt time.Time) ([]byte, error) {
	rows := make([]ListingRow, len(records))
	for i, rec := range records {
		rows[i] = ListingRow{
			Dataset:       dataset,
			Ordinal:       int64(i),
			Payload:       rec,
			PayloadSHA256: ComputeChecksum(rec),
			IngestedAt:    ingestedAt.UTC(),
		}
	}

	var buf bytes.Buffer
	w := parquet.NewGenericWriter[ListingRow](&buf, parquetCompression(e.compression))
	if _, err := w.Write(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func parquetCompression(name string) parquet.WriterOption {
	switch name {
	case "zstd":
		return parquet.Compression(&parquet.Zstd)
	case "none":
		return parquet.Compression(&parquet.Uncompressed)
	default:
		return parquet.Compression(&parquet.Snappy)
	}
}

func encodeJSONLZst(records []json.RawMessage) ([]byte, error) {
	var buf bytes.Buffer
	// Zero frames keep an empty dataset a valid, non-empty object.
	zw, err := zstd.NewWriter(&buf, zstd.WithZeroFrames(true))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	bw := bufio.NewWriter(zw)
	// Records are compacted so each one occupies exactly one line.
	var line bytes.Buffer
	for i, rec := range records {
		line.Reset()
		if err := json.Compact(&line, rec); err != nil {
			zw.Close()
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		bw.Write(line.Bytes())
		bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		zw.Close()
		return nil, fmt.Errorf("zstd compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zstd encoder: %w", err)
	}
	return buf.Bytes(), nil
}
