package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"dbrestore/internal/errors"
	"dbrestore/internal/logger"
	"dbrestore/internal/progress"
	"dbrestore/internal/retry"
)

// Defaults for upload fan-out and the per-object retry ladder
const (
	DefaultUploadConcurrency = 30
	DefaultUploadRetries     = 3
	DefaultProgressInterval  = 10 * time.Second
)

// Candidate is one local file and the key it maps to
type Candidate struct {
	LocalPath string `json:"local_path"`
	Key       string `json:"key"`
	Size      int64  `json:"size"`
}

// UploadOutcome is the result of one upload
type UploadOutcome struct {
	Key      string `json:"key"`
	Attempts int    `json:"attempts"`
	Err      error  `json:"-"`
	Error    string `json:"error,omitempty"`
}

// BucketResult aggregates one bucket's sync
type BucketResult struct {
	Bucket   string          `json:"bucket"`
	Uploaded int             `json:"uploaded"`
	Skipped  int             `json:"skipped"`
	Failed   int             `json:"failed"`
	Bytes    int64           `json:"bytes"`
	Failures []UploadOutcome `json:"failures,omitempty"`
	Err      error           `json:"-"`
	Error    string          `json:"error,omitempty"`
}

// SyncResult aggregates all buckets
type SyncResult struct {
	Buckets  []BucketResult `json:"buckets"`
	Uploaded int            `json:"uploaded"`
	Skipped  int            `json:"skipped"`
	Failed   int            `json:"failed"`
}

// HasFailures reports whether any upload or bucket failed
func (r *SyncResult) HasFailures() bool {
	if r.Failed > 0 {
		return true
	}
	for _, b := range r.Buckets {
		if b.Err != nil {
			return true
		}
	}
	return false
}

// SyncOptions configures a Synchronizer
type SyncOptions struct {
	Log         logger.Logger
	Concurrency int
	Retries     int

	// Retry overrides the upload ladder; tests use it to avoid real delays
	Retry *retry.Config

	// ProgressInterval is the minimum time between progress lines of a
	// bucket. Negative disables them.
	ProgressInterval time.Duration
}

// Synchronizer mirrors local bucket directories into an ObjectStore
type Synchronizer struct {
	store       ObjectStore
	fs          afero.Fs
	log         logger.Logger
	concurrency int
	retry       *retry.Config
	reportEvery time.Duration
}

// NewSynchronizer creates a synchronizer reading local files from fsys
func NewSynchronizer(store ObjectStore, fsys afero.Fs, opts SyncOptions) *Synchronizer {
	if opts.Log == nil {
		opts.Log = logger.NewNullLogger()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultUploadConcurrency
	}
	if opts.Retries < 0 {
		opts.Retries = DefaultUploadRetries
	}
	if opts.Retry == nil {
		opts.Retry = retry.UploadConfig(opts.Retries)
	}
	if opts.ProgressInterval == 0 {
		opts.ProgressInterval = DefaultProgressInterval
	}
	return &Synchronizer{
		store:       store,
		fs:          fsys,
		log:         opts.Log,
		concurrency: opts.Concurrency,
		retry:       opts.Retry,
		reportEvery: opts.ProgressInterval,
	}
}

// Sync mirrors every directory under root into the bucket of the same name.
// Without overwrite, keys already present in the bucket are skipped. Buckets
// run concurrently and one bucket's failure never stops another.
func (s *Synchronizer) Sync(ctx context.Context, root string, overwrite bool) *SyncResult {
	op := s.log.StartOperation("Storage sync")
	result := &SyncResult{}

	buckets, err := s.bucketDirs(root)
	if err != nil {
		s.log.Error("Cannot read storage directory", "path", root, "error", err)
		result.Buckets = []BucketResult{{Bucket: filepath.Base(root), Err: err, Error: err.Error()}}
		op.Fail("Storage sync failed")
		return result
	}

	result.Buckets = make([]BucketResult, len(buckets))
	var g errgroup.Group
	for i, bucket := range buckets {
		i, bucket := i, bucket
		g.Go(func() error {
			result.Buckets[i] = s.syncBucket(ctx, bucket, filepath.Join(root, bucket), overwrite)
			return nil
		})
	}
	_ = g.Wait()

	for _, b := range result.Buckets {
		result.Uploaded += b.Uploaded
		result.Skipped += b.Skipped
		result.Failed += b.Failed
	}
	op.Complete("Storage sync finished",
		"buckets", len(buckets), "uploaded", result.Uploaded,
		"skipped", result.Skipped, "failed", result.Failed)
	return result
}

func (s *Synchronizer) bucketDirs(root string) ([]string, error) {
	infos, err := afero.ReadDir(s.fs, root)
	if err != nil {
		return nil, errors.FatalIO(root, err)
	}
	var buckets []string
	for _, info := range infos {
		if info.IsDir() {
			buckets = append(buckets, info.Name())
		} else {
			s.log.Warn("Ignoring file outside a bucket directory", "file", info.Name())
		}
	}
	sort.Strings(buckets)
	return buckets, nil
}

func (s *Synchronizer) syncBucket(ctx context.Context, bucket, dir string, overwrite bool) BucketResult {
	log := s.log.WithFields(map[string]interface{}{"bucket": bucket, "provider": s.store.Name()})
	res := BucketResult{Bucket: bucket}
	fail := func(err error) BucketResult {
		res.Err = errors.StorageFailure(bucket, err)
		res.Error = res.Err.Error()
		log.Error("Bucket sync failed", "error", err)
		return res
	}

	if err := s.ensureBucket(ctx, bucket); err != nil {
		return fail(err)
	}

	existing, err := s.store.ListKeys(ctx, bucket)
	if err != nil {
		return fail(err)
	}

	candidates, err := s.walk(dir)
	if err != nil {
		return fail(err)
	}

	pending := Plan(candidates, existing, overwrite)
	res.Skipped = len(candidates) - len(pending)
	log.Debug("Sync plan ready", "candidates", len(candidates), "existing", len(existing), "upload", len(pending))

	outcomes := s.uploadAll(ctx, bucket, pending)
	for i, o := range outcomes {
		if o.Err != nil {
			res.Failed++
			res.Failures = append(res.Failures, o)
			continue
		}
		res.Uploaded++
		res.Bytes += pending[i].Size
	}

	log.Info("Bucket synced", "uploaded", res.Uploaded, "skipped", res.Skipped,
		"failed", res.Failed, "size", humanize.Bytes(uint64(res.Bytes)))
	return res
}

func (s *Synchronizer) ensureBucket(ctx context.Context, bucket string) error {
	exists, err := s.store.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	s.log.Info("Creating bucket", "bucket", bucket)
	return s.store.CreateBucket(ctx, bucket)
}

// walk lists regular files under dir as candidates keyed by their
// slash-separated path relative to dir
func (s *Synchronizer) walk(dir string) ([]Candidate, error) {
	var candidates []Candidate
	err := afero.Walk(s.fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		candidates = append(candidates, Candidate{
			LocalPath: path,
			Key:       filepath.ToSlash(rel),
			Size:      info.Size(),
		})
		return nil
	})
	return candidates, err
}

// Plan drops candidates whose key already exists unless overwrite is set
func Plan(candidates []Candidate, existing map[string]struct{}, overwrite bool) []Candidate {
	if overwrite {
		return candidates
	}
	pending := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := existing[c.Key]; ok {
			continue
		}
		pending = append(pending, c)
	}
	return pending
}

func (s *Synchronizer) uploadAll(ctx context.Context, bucket string, pending []Candidate) []UploadOutcome {
	outcomes := make([]UploadOutcome, len(pending))
	sem := semaphore.NewWeighted(int64(s.concurrency))
	var wg sync.WaitGroup

	var total int64
	for _, c := range pending {
		total += c.Size
	}
	tracker := progress.NewTracker(len(pending), total, s.reportEvery, time.Now())

	for i, c := range pending {
		if err := sem.Acquire(ctx, 1); err != nil {
			outcomes[i] = UploadOutcome{Key: c.Key, Err: err, Error: err.Error()}
			continue
		}
		wg.Add(1)
		go func(i int, c Candidate) {
			defer sem.Release(1)
			defer wg.Done()
			outcomes[i] = s.upload(ctx, bucket, c)
			if snap, due := tracker.Done(c.Size, time.Now()); due {
				s.logProgress(bucket, snap)
			}
		}(i, c)
	}
	wg.Wait()
	return outcomes
}

func (s *Synchronizer) logProgress(bucket string, snap progress.Snapshot) {
	kv := []any{
		"bucket", bucket,
		"files", fmt.Sprintf("%d/%d", snap.DoneItems, snap.TotalItems),
		"percent", fmt.Sprintf("%.1f", snap.Percent()),
		"speed", humanize.Bytes(uint64(snap.Speed)) + "/s",
	}
	if snap.HasETA {
		kv = append(kv, "eta", snap.ETA.Round(time.Second))
	}
	s.log.Info("Upload progress", kv...)
}

func (s *Synchronizer) upload(ctx context.Context, bucket string, c Candidate) UploadOutcome {
	contentType := ContentType(c.Key)
	attempts, err := retry.Do(ctx, s.retry, func() error {
		f, err := s.fs.Open(c.LocalPath)
		if err != nil {
			return retry.Permanent(err)
		}
		defer f.Close()
		return s.store.Upload(ctx, bucket, c.Key, f, c.Size, contentType)
	}, func(err error, wait time.Duration) {
		s.log.Debug("Upload retry", "bucket", bucket, "key", c.Key, "wait", wait, "error", err)
	})

	o := UploadOutcome{Key: c.Key, Attempts: attempts}
	if err != nil {
		o.Err = fmt.Errorf("upload %s after %d attempts: %w", c.Key, attempts, err)
		o.Error = o.Err.Error()
		s.log.Warn("Upload failed", "bucket", bucket, "key", c.Key, "attempts", attempts, "error", err)
	}
	return o
}
