package tables

import (
	"strings"
	"testing"
	"time"
)

func TestValidateOutputPasses(t *testing.T) {
	for _, format := range []Format{FormatParquet, FormatJSONLZst} {
		enc, err := NewEncoder(format, "")
		if err != nil {
			t.Fatalf("NewEncoder failed: %v", err)
		}
		records := sampleRecords()
		out, err := enc.Encode("2024-3-9-14-eu1234", records, time.Now())
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}

		result := ValidateOutput(out, len(records))
		if !result.Passed {
			t.Errorf("%s: validation failed: %v", format, result.Errors)
		}
		if result.RowCount != 3 || result.ByteSize == 0 {
			t.Errorf("%s: unexpected result %+v", format, result)
		}
		if result.Err() != nil {
			t.Errorf("%s: Err() = %v, want nil", format, result.Err())
		}
	}
}

func TestValidateOutputEmptyDataset(t *testing.T) {
	enc, err := NewEncoder(FormatJSONLZst, "")
	if err != nil {
		t.Fatalf("NewEncoder failed: %v", err)
	}
	out, err := enc.Encode("2024-3-9-14-us1", nil, time.Now())
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if result := ValidateOutput(out, 0); !result.Passed {
		t.Errorf("empty dataset should validate: %v", result.Errors)
	}
}

func TestValidateOutputFailures(t *testing.T) {
	data := []byte("payload")
	tests := []struct {
		name string
		out  *Output
		rows int
		want string
	}{
		{"nil output", nil, 0, "no output"},
		{"empty bytes", &Output{Checksum: ComputeChecksum(nil)}, 0, "empty encoded data"},
		{"row mismatch", &Output{Bytes: data, Checksum: ComputeChecksum(data), RowCount: 2}, 3, "row count mismatch"},
		{"missing checksum", &Output{Bytes: data, RowCount: 1}, 1, "missing checksum"},
		{"bad checksum", &Output{Bytes: data, Checksum: ComputeChecksum([]byte("other")), RowCount: 1}, 1, "does not match"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateOutput(tt.out, tt.rows)
			if result.Passed {
				t.Fatal("expected validation to fail")
			}
			if err := result.Err(); err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Err() = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestValidateOutputNonStandardChecksumWarns(t *testing.T) {
	data := []byte("payload")
	result := ValidateOutput(&Output{Bytes: data, Checksum: "md5:abc", RowCount: 1}, 1)
	if !result.Passed {
		t.Errorf("non-standard checksum should only warn: %v", result.Errors)
	}
	if len(result.Warnings) != 1 {
		t.Errorf("Warnings = %v, want one", result.Warnings)
	}
}

func TestValidateOutputDetectsRowCountDrift(t *testing.T) {
	enc, err := NewEncoder(FormatJSONLZst, "")
	if err != nil {
		t.Fatalf("NewEncoder failed: %v", err)
	}
	out, err := enc.Encode("ds", sampleRecords(), time.Now())
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	// A manifest count that disagrees with the encoded contents must fail
	// even when it matches the caller's record count.
	out.RowCount = 2
	result := ValidateOutput(out, 2)
	if result.Passed {
		t.Fatal("expected validation to fail")
	}
	if err := result.Err(); err == nil || !strings.Contains(err.Error(), "decoded 3 records") {
		t.Errorf("Err() = %v, want decoded count mismatch", err)
	}
}
