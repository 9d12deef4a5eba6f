package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/withObsrvr/obsrvr-auction-snapshotter/internal/tables"
)

const manifestFile = "_manifest.json"

// ErrDatasetNotFound is returned when reading a dataset that has no manifest.
var ErrDatasetNotFound = errors.New("dataset not found")

// BlobOptions configures a BlobStore.
type BlobOptions struct {
	Prefix          string
	Format          tables.Format
	Compression     string
	ProducerVersion string
}

// BlobStore keeps each dataset under its own key prefix in a gocloud bucket:
//
//	{prefix}{dataset}/listings.<ext>
//	{prefix}{dataset}/_manifest.json
//
// Objects are written to temp keys and copied into place, so a reader never
// sees a partially written object.
type BlobStore struct {
	bucket  *blob.Bucket
	uri     string
	opts    BlobOptions
	encoder *tables.Encoder
}

func newBlobStore(bucket *blob.Bucket, uri string, opts BlobOptions) (*BlobStore, error) {
	if opts.Format == "" {
		opts.Format = tables.FormatParquet
	}
	if opts.ProducerVersion == "" {
		opts.ProducerVersion = "dev"
	}
	enc, err := tables.NewEncoder(opts.Format, opts.Compression)
	if err != nil {
		bucket.Close()
		return nil, err
	}
	return &BlobStore{bucket: bucket, uri: uri, opts: opts, encoder: enc}, nil
}

// DatasetPrefix returns the key prefix that holds a dataset.
func (s *BlobStore) DatasetPrefix(name string) string {
	return s.opts.Prefix + name + "/"
}

func (s *BlobStore) listingsKey(name string) string {
	return s.DatasetPrefix(name) + "listings" + s.opts.Format.Extension()
}

func (s *BlobStore) manifestKey(name string) string {
	return s.DatasetPrefix(name) + manifestFile
}

// DropDataset deletes every object under the dataset prefix.
func (s *BlobStore) DropDataset(ctx context.Context, name string) error {
	keys, err := s.List(ctx, s.DatasetPrefix(name))
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.bucket.Delete(ctx, key); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}
	return nil
}

// blobBatch is an encoded, validated listings object and its manifest.
type blobBatch struct {
	store    *BlobStore
	name     string
	rows     int
	listings []byte
	manifest []byte
}

func (b *blobBatch) Dataset() string { return b.name }
func (b *blobBatch) Len() int        { return b.rows }

// Prepare encodes all records into one listings object, validates it and
// builds the manifest.
func (s *BlobStore) Prepare(name string, records []json.RawMessage) (Batch, error) {
	now := time.Now().UTC()

	out, err := s.encoder.Encode(name, records, now)
	if err != nil {
		return nil, fmt.Errorf("encode dataset %s: %w", name, err)
	}
	if err := tables.ValidateOutput(out, len(records)).Err(); err != nil {
		return nil, fmt.Errorf("dataset %s: %w", name, err)
	}

	listingsKey := s.listingsKey(name)
	manifest := &Manifest{
		Dataset: name,
		Table: TableInfo{
			File:     listingsKey[strings.LastIndex(listingsKey, "/")+1:],
			Format:   string(out.Format),
			Checksum: out.Checksum,
			RowCount: out.RowCount,
			ByteSize: int64(len(out.Bytes)),
		},
		RecordsChecksum: tables.RecordsChecksum(records),
		Producer: ProducerInfo{
			Name:    "auction-snapshotter",
			Version: s.opts.ProducerVersion,
		},
		CreatedAt: now,
	}
	manifestBytes, err := manifest.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}

	return &blobBatch{
		store:    s,
		name:     name,
		rows:     len(records),
		listings: out.Bytes,
		manifest: manifestBytes,
	}, nil
}

// BulkInsert publishes a prepared listings object together with its manifest.
func (s *BlobStore) BulkInsert(ctx context.Context, name string, batch Batch) error {
	b, ok := batch.(*blobBatch)
	if !ok || b.store != s || b.name != name {
		return fmt.Errorf("insert dataset %s: %w", name, ErrBatchMismatch)
	}

	finalKeys := []string{s.listingsKey(name), s.manifestKey(name)}
	payloads := [][]byte{b.listings, b.manifest}

	var tempKeys []string
	for i, data := range payloads {
		tempKey, err := s.writeTemp(ctx, finalKeys[i], data)
		if err != nil {
			s.abort(ctx, tempKeys)
			return err
		}
		tempKeys = append(tempKeys, tempKey)
	}

	return s.finalize(ctx, tempKeys, finalKeys)
}

func (s *BlobStore) writeTemp(ctx context.Context, key string, data []byte) (string, error) {
	tempKey := key + ".tmp." + uuid.New().String()
	if err := s.bucket.WriteAll(ctx, tempKey, data, nil); err != nil {
		return "", fmt.Errorf("write %s: %w", tempKey, err)
	}
	return tempKey, nil
}

// finalize copies temp objects to their final keys, manifest last. On failure
// any copied objects are removed and temps are cleaned up.
func (s *BlobStore) finalize(ctx context.Context, tempKeys, finalKeys []string) error {
	for i, tempKey := range tempKeys {
		if err := s.bucket.Copy(ctx, finalKeys[i], tempKey, nil); err != nil {
			for j := 0; j < i; j++ {
				s.bucket.Delete(ctx, finalKeys[j])
			}
			s.abort(ctx, tempKeys)
			return fmt.Errorf("finalize %s -> %s: %w", tempKey, finalKeys[i], err)
		}
	}

	for _, tempKey := range tempKeys {
		s.bucket.Delete(ctx, tempKey) // ignore errors
	}
	return nil
}

func (s *BlobStore) abort(ctx context.Context, tempKeys []string) {
	for _, key := range tempKeys {
		s.bucket.Delete(ctx, key)
	}
}

// ReadManifest loads a dataset's manifest.
func (s *BlobStore) ReadManifest(ctx context.Context, name string) (*Manifest, error) {
	data, err := s.bucket.ReadAll(ctx, s.manifestKey(name))
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, name)
		}
		return nil, fmt.Errorf("read manifest for %s: %w", name, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest for %s: %w", name, err)
	}
	return &m, nil
}

// ReadDataset loads and verifies a dataset's records.
func (s *BlobStore) ReadDataset(ctx context.Context, name string) ([]json.RawMessage, error) {
	m, err := s.ReadManifest(ctx, name)
	if err != nil {
		return nil, err
	}

	data, err := s.bucket.ReadAll(ctx, s.DatasetPrefix(name)+m.Table.File)
	if err != nil {
		return nil, fmt.Errorf("read listings for %s: %w", name, err)
	}
	if !tables.VerifyChecksum(data, m.Table.Checksum) {
		return nil, fmt.Errorf("checksum mismatch for %s", name)
	}
	return tables.Decode(tables.Format(m.Table.Format), data)
}

// Exists reports whether a dataset has been published.
func (s *BlobStore) Exists(ctx context.Context, name string) (bool, error) {
	return s.bucket.Exists(ctx, s.manifestKey(name))
}

// List returns all keys with the given prefix.
func (s *BlobStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	iter := s.bucket.List(&blob.ListOptions{
		Prefix: prefix,
	})

	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		if obj.IsDir {
			continue
		}
		keys = append(keys, obj.Key)
	}

	return keys, nil
}

// URI returns the canonical URI for the given dataset.
func (s *BlobStore) URI(name string) string {
	return strings.TrimRight(s.uri, "/") + "/" + s.DatasetPrefix(name)
}

// Close releases the bucket connection.
func (s *BlobStore) Close() error {
	if s.bucket != nil {
		return s.bucket.Close()
	}
	return nil
}

var _ SnapshotStore = (*BlobStore)(nil)
