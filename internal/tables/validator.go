package tables

import (
	"fmt"
	"strings"
)

// ValidationResult contains the outcome of output validation.
type ValidationResult struct {
	Passed   bool
	Errors   []string
	Warnings []string
	RowCount int64
	ByteSize int64
}

// Err returns the validation errors joined into one error, or nil.
func (r ValidationResult) Err() error {
	if r.Passed {
		return nil
	}
	return fmt.Errorf("output validation failed: %s", strings.Join(r.Errors, "; "))
}

// ValidateOutput performs quality checks on an encoded dataset before it is
// published:
// - encoded bytes are present
// - row count matches the number of input records
// - checksum is present and matches the bytes
// - the bytes decode back to the same number of records
func ValidateOutput(out *Output, records int) ValidationResult {
	result := ValidationResult{Passed: true}

	if out == nil {
		result.Errors = append(result.Errors, "no output provided")
		result.Passed = false
		return result
	}
	result.RowCount = out.RowCount
	result.ByteSize = int64(len(out.Bytes))

	// Even an empty dataset encodes to a parquet footer or a zstd frame.
	if len(out.Bytes) == 0 {
		result.Errors = append(result.Errors, "empty encoded data")
		result.Passed = false
	}

	if out.RowCount != int64(records) {
		result.Errors = append(result.Errors,
			fmt.Sprintf("row count mismatch: have %d, expected %d", out.RowCount, records))
		result.Passed = false
	}

	// Outputs without a format cannot be decoded; only the byte checks apply.
	if out.Format != "" && len(out.Bytes) > 0 {
		decoded, err := Decode(out.Format, out.Bytes)
		switch {
		case err != nil:
			result.Errors = append(result.Errors, fmt.Sprintf("decode check failed: %v", err))
			result.Passed = false
		case len(decoded) != int(out.RowCount):
			result.Errors = append(result.Errors,
				fmt.Sprintf("decoded %d records, manifest row count %d", len(decoded), out.RowCount))
			result.Passed = false
		}
	}

	switch {
	case out.Checksum == "":
		result.Errors = append(result.Errors, "missing checksum")
		result.Passed = false
	case !strings.HasPrefix(out.Checksum, "sha256:"):
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("checksum may be in non-standard format: %s", out.Checksum[:min(20, len(out.Checksum))]))
	case !VerifyChecksum(out.Bytes, out.Checksum):
		result.Errors = append(result.Errors, "checksum does not match encoded data")
		result.Passed = false
	}

	return result
}
