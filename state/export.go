package state

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/prospect-io/prospector/iox"
	"github.com/prospect-io/prospector/types"
)

// S3Options configures s3:// export/import targets. The zero value uses the
// AWS default credential chain and endpoint.
type S3Options struct {
	Region string
	// Endpoint is a custom URL for S3-compatible providers (R2, MinIO).
	Endpoint string
	// UsePathStyle forces path-style addressing, required by most
	// S3-compatible providers.
	UsePathStyle bool
}

// s3Target splits "s3://bucket/key" into its parts.
func s3Target(dest string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(dest, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, _ = strings.Cut(rest, "/")
	return bucket, key, bucket != "" && key != ""
}

func newS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if opts.Endpoint != "" {
		endpoint := opts.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = &endpoint })
	}
	if opts.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}
	return s3.NewFromConfig(awsCfg, s3Opts...), nil
}

// Export writes the current snapshot to dest: a local path or an
// "s3://bucket/key" target.
func (s *Store) Export(ctx context.Context, dest string, s3opts S3Options) error {
	data, err := json.MarshalIndent(s.snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	if bucket, key, ok := s3Target(dest); ok {
		client, err := newS3Client(ctx, s3opts)
		if err != nil {
			return err
		}
		_, err = client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("application/json"),
		})
		if err != nil {
			return fmt.Errorf("upload state to %s: %w", dest, err)
		}
		s.logger.Info("state exported", zap.String("dest", dest), zap.Int("bytes", len(data)))
		return nil
	}

	if err := iox.WriteFileAtomic(dest, data, 0o644); err != nil {
		return err
	}
	s.logger.Info("state exported", zap.String("dest", dest), zap.Int("bytes", len(data)))
	return nil
}

// Import replaces or merges the current snapshot with the one at src, which
// may be a local path or an "s3://bucket/key" target. Imported data passes
// through the same schema migration chain as startup loads.
//
// With merge=false the imported snapshot replaces the current one. With
// merge=true histories are unioned by record id, ordered by timestamp, and
// existing metadata wins over imported metadata.
func (s *Store) Import(ctx context.Context, src string, merge bool, s3opts S3Options) error {
	var data []byte
	if bucket, key, ok := s3Target(src); ok {
		client, err := newS3Client(ctx, s3opts)
		if err != nil {
			return err
		}
		obj, err := client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return fmt.Errorf("download state from %s: %w", src, err)
		}
		defer iox.DiscardClose(obj.Body)
		if data, err = io.ReadAll(obj.Body); err != nil {
			return fmt.Errorf("read state from %s: %w", src, err)
		}
	} else {
		var err error
		if data, err = os.ReadFile(src); err != nil {
			return fmt.Errorf("read import %s: %w", src, err)
		}
	}

	imported, err := decodeSnapshot(data, s.now())
	if err != nil {
		return fmt.Errorf("import %s: %w", src, err)
	}

	return s.mutate(func(snap *Snapshot) error {
		if !merge {
			*snap = *imported
			return nil
		}
		mergeSnapshots(snap, imported)
		return nil
	})
}

// mergeSnapshots unions imported into dst by record id.
func mergeSnapshots(dst, imported *Snapshot) {
	for name, history := range imported.Models {
		existing := make(map[string]struct{})
		for _, rec := range dst.Models[name] {
			existing[rec.ID] = struct{}{}
		}
		for _, rec := range history {
			if _, ok := existing[rec.ID]; ok {
				continue
			}
			dst.Models[name] = append(dst.Models[name], cloneRecord(rec))
		}
		sortByTimestamp(dst.Models[name])
	}

	logIDs := make(map[string]struct{}, len(dst.Log))
	for _, rec := range dst.Log {
		logIDs[rec.ID] = struct{}{}
	}
	for _, rec := range imported.Log {
		if _, ok := logIDs[rec.ID]; ok {
			continue
		}
		dst.Log = append(dst.Log, cloneRecord(rec))
	}
	sortByTimestamp(dst.Log)

	for k, v := range imported.Metadata {
		if _, ok := dst.Metadata[k]; !ok {
			dst.Metadata[k] = v
		}
	}
}

func sortByTimestamp(records []*types.AttemptRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
}
