package tables

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/parquet-go/parquet-go"
)

// Decode reads records back from an encoded dataset object, in insertion order.
func Decode(format Format, data []byte) ([]json.RawMessage, error) {
	switch format {
	case FormatParquet:
		rows, err := parquet.Read[ListingRow](bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return nil, fmt.Errorf("read parquet rows: %w", err)
		}
		out := make([]json.RawMessage, len(rows))
		for _, row := range rows {
			if row.Ordinal < 0 || row.Ordinal >= int64(len(rows)) {
				return nil, fmt.Errorf("row ordinal %d out of range", row.Ordinal)
			}
			out[row.Ordinal] = json.RawMessage(row.Payload)
		}
		return out, nil

	case FormatJSONLZst:
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		defer dec.Close()

		raw, err := dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}

		var out []json.RawMessage
		sc := bufio.NewScanner(bytes.NewReader(raw))
		sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for sc.Scan() {
			line := sc.Bytes()
			if len(line) == 0 {
				continue
			}
			out = append(out, json.RawMessage(append([]byte(nil), line...)))
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("scan records: %w", err)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}
