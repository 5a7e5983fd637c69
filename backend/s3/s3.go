// Package s3 provides a FileSystem backed by an S3-compatible object
// store. Directories are not native: isdir is derived from the
// presence of any object whose key starts with the directory's
// key-prefix, so a single path may be both file and directory.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	awssdk "github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/brindlefs/vfs"
)

// Options configures an S3 backend.
type Options struct {
	Bucket    string
	KeyPrefix string // forced to a trailing "/"; empty means bucket root
	Region    string
	Endpoint  string // non-empty for S3-compatible stores

	AccessKeyID     string // optional; falls back to the platform credential chain
	SecretAccessKey string
}

// retrySubstrings are transient-error substrings observed in S3 (and
// S3-compatible) error messages. Any other error propagates without
// retry.
var retrySubstrings = []string{
	"SlowDown",
	"Could not connect to the endpoint URL",
	"InternalError",
	"Connection reset by peer",
	"Remote end closed connection without response",
	"reached max retries",
	"Service Unavailable",
}

const (
	minSleep    = 500 * time.Millisecond
	maxSleep    = 10 * time.Second
	sleepFactor = 1.5
)

// S3 is a FileSystem over an S3-compatible bucket.
type S3 struct {
	opt    Options
	prefix string // opt.KeyPrefix normalized with a trailing "/", or ""

	mu      sync.Mutex // guards client/session construction
	client  *s3.S3
	session *session.Session
}

// New constructs an S3-backed FileSystem.
func New(ctx context.Context, opt Options) (*S3, error) {
	if opt.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}
	prefix := strings.Trim(opt.KeyPrefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &S3{
		opt:    opt,
		prefix: prefix,
	}, nil
}

// String identifies this backend by bucket and key prefix.
func (f *S3) String() string {
	return fmt.Sprintf("S3 bucket %s, prefix %q", f.opt.Bucket, f.prefix)
}

// IsReadOnly is always false for a plain S3 backend.
func (f *S3) IsReadOnly() bool { return false }

// getClient lazily builds the session/client pair from the configured
// region, endpoint and static credentials (if any). It does not set any
// metadata-service retry or timeout tuning.
func (f *S3) getClient(ctx context.Context) (*s3.S3, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client != nil {
		return f.client, nil
	}
	cfg := awssdk.NewConfig()
	if f.opt.Region != "" {
		cfg = cfg.WithRegion(f.opt.Region)
	}
	if f.opt.Endpoint != "" {
		cfg = cfg.WithEndpoint(f.opt.Endpoint).WithS3ForcePathStyle(true)
	}
	if f.opt.AccessKeyID != "" {
		cfg = cfg.WithCredentials(credentials.NewStaticCredentials(f.opt.AccessKeyID, f.opt.SecretAccessKey, ""))
	}
	sess, err := session.NewSessionWithOptions(session.Options{
		Config:            *cfg,
		SharedConfigState: session.SharedConfigStateFromEnv,
	})
	if err != nil {
		return nil, fmt.Errorf("s3: session: %w", err)
	}
	f.session = sess
	f.client = s3.New(sess)
	return f.client, nil
}

// pathToKey translates a vfs path to an object key, defending against
// a normalized path that somehow resolves outside the configured
// prefix.
func (f *S3) pathToKey(p string) (string, error) {
	norm, err := vfs.Normalize(p)
	if err != nil {
		return "", err
	}
	key := f.prefix + norm
	if norm == "" {
		key = f.prefix
	}
	if f.prefix != "" && !strings.HasPrefix(key, f.prefix) {
		return "", fmt.Errorf("s3: key %q escapes prefix %q: %w", key, f.prefix, vfs.ErrInvalidPath)
	}
	return key, nil
}

func withTrailingSep(key string) string {
	if key == "" || strings.HasSuffix(key, "/") {
		return key
	}
	return key + "/"
}

// shouldRetry classifies an S3 SDK error as transient or not, matching
// the teacher's awserr-aware shouldRetry: check the RequestTimeout code
// and HTTP status, falling back to substring matching on the full error
// text.
func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if awsErr, ok := err.(awserr.Error); ok {
		if awsErr.Code() == "RequestTimeout" {
			return true
		}
		if reqErr, ok := err.(awserr.RequestFailure); ok {
			switch reqErr.StatusCode() {
			case 429, 500, 503:
				return true
			}
		}
	}
	msg := err.Error()
	for _, sub := range retrySubstrings {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}

// call wraps an S3 operation with indefinite exponential-backoff
// retry on transient errors, sleeping from minSleep up to maxSleep
// with sleepFactor growth per attempt.
func call(ctx context.Context, op func() error) error {
	sleep := minSleep
	for {
		err := op()
		if err == nil {
			return nil
		}
		if !shouldRetry(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
		sleep = time.Duration(math.Min(float64(maxSleep), float64(sleep)*sleepFactor))
	}
}

// Exists reports whether p resolves to a file or directory.
func (f *S3) Exists(ctx context.Context, p string) (bool, error) {
	isFile, err := f.IsFile(ctx, p)
	if err != nil {
		return false, err
	}
	if isFile {
		return true, nil
	}
	return f.IsDir(ctx, p)
}

// IsDir is true if any object has a key starting with the
// with-trailing-separator key for p, or if p is empty. Preserved
// verbatim: isdir("") always returns true even on an empty bucket,
// since callers distinguish "bucket exists" by construction time (see
// DESIGN.md Open Questions).
func (f *S3) IsDir(ctx context.Context, p string) (bool, error) {
	norm, err := vfs.Normalize(p)
	if err != nil {
		return false, err
	}
	if norm == "" {
		return true, nil
	}
	key, err := f.pathToKey(p)
	if err != nil {
		return false, err
	}
	client, err := f.getClient(ctx)
	if err != nil {
		return false, err
	}
	var found bool
	err = call(ctx, func() error {
		out, err := client.ListObjectsV2WithContext(ctx, &s3.ListObjectsV2Input{
			Bucket:  awssdk.String(f.opt.Bucket),
			Prefix:  awssdk.String(withTrailingSep(key)),
			MaxKeys: awssdk.Int64(1),
		})
		if err != nil {
			return err
		}
		found = len(out.Contents) > 0
		return nil
	})
	if err != nil {
		return false, classify(err)
	}
	return found, nil
}

// IsFile is true iff the exact key loads (a HEAD-equivalent succeeds).
func (f *S3) IsFile(ctx context.Context, p string) (bool, error) {
	key, err := f.pathToKey(p)
	if err != nil {
		return false, err
	}
	if key == f.prefix {
		return false, nil
	}
	client, err := f.getClient(ctx)
	if err != nil {
		return false, err
	}
	var exists bool
	err = call(ctx, func() error {
		_, err := client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
			Bucket: awssdk.String(f.opt.Bucket),
			Key:    awssdk.String(key),
		})
		if isNotFound(err) {
			exists = false
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	if err != nil {
		return false, classify(err)
	}
	return exists, nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	if awsErr, ok := err.(awserr.Error); ok {
		return awsErr.Code() == s3.ErrCodeNoSuchKey || awsErr.Code() == "NotFound"
	}
	return false
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return fmt.Errorf("%v: %w", err, vfs.ErrNotExist)
	}
	return fmt.Errorf("%v: %w", err, vfs.ErrInaccessible)
}

// GetModTime returns the modification time of an existing file or directory.
func (f *S3) GetModTime(ctx context.Context, p string) (time.Time, error) {
	info, err := f.headOrDirTime(ctx, p)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime, nil
}

// GetSize returns the byte length of an existing file.
func (f *S3) GetSize(ctx context.Context, p string) (int64, error) {
	info, err := f.headOrDirTime(ctx, p)
	if err != nil {
		return 0, err
	}
	return info.Size, nil
}

// Stat combines GetModTime and GetSize via a single HEAD.
func (f *S3) Stat(ctx context.Context, p string) (vfs.Info, error) {
	return f.headOrDirTime(ctx, p)
}

func (f *S3) headOrDirTime(ctx context.Context, p string) (vfs.Info, error) {
	key, err := f.pathToKey(p)
	if err != nil {
		return vfs.Info{}, err
	}
	client, err := f.getClient(ctx)
	if err != nil {
		return vfs.Info{}, err
	}
	var info vfs.Info
	var headErr error
	err = call(ctx, func() error {
		out, err := client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
			Bucket: awssdk.String(f.opt.Bucket),
			Key:    awssdk.String(key),
		})
		if isNotFound(err) {
			headErr = err
			return nil
		}
		if err != nil {
			return err
		}
		info = vfs.Info{ModTime: awssdk.TimeValue(out.LastModified), Size: awssdk.Int64Value(out.ContentLength)}
		return nil
	})
	if err != nil {
		return vfs.Info{}, classify(err)
	}
	if headErr != nil {
		isDir, derr := f.IsDir(ctx, p)
		if derr == nil && isDir {
			return vfs.Info{ModTime: time.Time{}, Size: 0}, nil
		}
		return vfs.Info{}, classify(headErr)
	}
	return info, nil
}

// ListDir lists p's children (directories included) as full paths,
// using the delimited paginator and recursing into CommonPrefixes when
// recursive is set. listDir's plain prefix scan (listFlat) is taken
// only for a recursive listing that excludes directories, which ListDir
// never requests.
func (f *S3) ListDir(ctx context.Context, p string, recursive bool, maxEntries int) ([]string, error) {
	return f.listDir(ctx, p, recursive, true, maxEntries)
}

func (f *S3) listDir(ctx context.Context, p string, recursive, includeDirs bool, maxEntries int) ([]string, error) {
	key, err := f.pathToKey(p)
	if err != nil {
		return nil, err
	}
	prefix := withTrailingSep(key)
	if prefix == "" {
		prefix = ""
	}
	client, err := f.getClient(ctx)
	if err != nil {
		return nil, err
	}

	if recursive && !includeDirs {
		return f.listFlat(ctx, client, prefix, maxEntries)
	}
	return f.listDelimited(ctx, client, prefix, recursive, includeDirs, maxEntries)
}

func (f *S3) listFlat(ctx context.Context, client *s3.S3, prefix string, maxEntries int) ([]string, error) {
	var out []string
	err := call(ctx, func() error {
		out = out[:0]
		return client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
			Bucket: awssdk.String(f.opt.Bucket),
			Prefix: awssdk.String(prefix),
		}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
			for _, obj := range page.Contents {
				out = append(out, strings.TrimPrefix(awssdk.StringValue(obj.Key), f.prefix))
				if maxEntries > 0 && len(out) >= maxEntries {
					return false
				}
			}
			return true
		})
	})
	if err != nil {
		return nil, classify(err)
	}
	if maxEntries > 0 && len(out) > maxEntries {
		out = out[:maxEntries]
	}
	return out, nil
}

func (f *S3) listDelimited(ctx context.Context, client *s3.S3, prefix string, recursive, includeDirs bool, maxEntries int) ([]string, error) {
	var out []string
	var walk func(prefix string) error
	walk = func(prefix string) error {
		return call(ctx, func() error {
			return client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
				Bucket:    awssdk.String(f.opt.Bucket),
				Prefix:    awssdk.String(prefix),
				Delimiter: awssdk.String("/"),
			}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
				for _, obj := range page.Contents {
					out = append(out, strings.TrimPrefix(awssdk.StringValue(obj.Key), f.prefix))
					if maxEntries > 0 && len(out) >= maxEntries {
						return false
					}
				}
				for _, cp := range page.CommonPrefixes {
					dirKey := awssdk.StringValue(cp.Prefix)
					dirPath := strings.TrimSuffix(strings.TrimPrefix(dirKey, f.prefix), "/")
					if includeDirs {
						out = append(out, dirPath)
						if maxEntries > 0 && len(out) >= maxEntries {
							return false
						}
					}
					if recursive {
						if err := walk(dirKey); err != nil {
							return false
						}
					}
				}
				return true
			})
		})
	}
	if err := walk(prefix); err != nil {
		return nil, classify(err)
	}
	if maxEntries > 0 && len(out) > maxEntries {
		out = out[:maxEntries]
	}
	return out, nil
}

// ListFiles returns the full paths of files whose path starts with prefix.
func (f *S3) ListFiles(ctx context.Context, prefix string) ([]string, error) {
	return vfs.DefaultListFiles(ctx, f, prefix)
}

// ListSubdirs returns the directory paths under p.
func (f *S3) ListSubdirs(ctx context.Context, p string, recursive bool) ([]string, error) {
	return vfs.DefaultListSubdirs(ctx, f, p, recursive)
}

// IterateFiles lazily walks files under prefix.
func (f *S3) IterateFiles(ctx context.Context, prefix string, filter func(string) bool) (vfs.FileIterator, error) {
	return vfs.DefaultIterateFiles(ctx, f, prefix, filter)
}

// Get returns the full contents of an existing file.
func (f *S3) Get(ctx context.Context, p string) ([]byte, error) {
	var buf bytes.Buffer
	w := &nopSeeker{Buffer: &buf}
	if err := f.GetInto(ctx, p, w); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GetInto downloads p into stream, seeking stream to 0 first.
func (f *S3) GetInto(ctx context.Context, p string, stream vfs.Seeker) error {
	if err := vfs.RewindTo0(stream); err != nil {
		return err
	}
	key, err := f.pathToKey(p)
	if err != nil {
		return err
	}
	client, err := f.getClient(ctx)
	if err != nil {
		return err
	}
	downloader := s3manager.NewDownloaderWithClient(client, func(d *s3manager.Downloader) {
		// fakeWriterAt below writes sequentially into the caller's
		// stream; force single-part, in-order downloads to match.
		d.Concurrency = 1
	})
	err = call(ctx, func() error {
		if err := vfs.RewindTo0(stream); err != nil {
			return err
		}
		_, err := downloader.DownloadWithContext(ctx, fakeWriterAt{stream}, &s3.GetObjectInput{
			Bucket: awssdk.String(f.opt.Bucket),
			Key:    awssdk.String(key),
		})
		return err
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

// Set uploads content (bytes or a seekable stream positioned at 0) to
// p via the multipart-capable uploader. A stream source is wrapped in
// a CloseProtect shim so the uploader can't close the caller's stream.
func (f *S3) Set(ctx context.Context, p string, content any) error {
	key, err := f.pathToKey(p)
	if err != nil {
		return err
	}
	client, err := f.getClient(ctx)
	if err != nil {
		return err
	}
	seeker, isSeeker := content.(vfs.Seeker)
	if !isSeeker {
		if _, ok := content.([]byte); !ok {
			return pathErr("set", p, vfs.ErrInvalidContent)
		}
	} else if err := vfs.RequirePosition0(seeker); err != nil {
		return err
	}

	uploader := s3manager.NewUploaderWithClient(client)
	err = call(ctx, func() error {
		// Body is (re)built fresh on every attempt: a plain []byte gets
		// a new bytes.Reader each time, and a caller stream is rewound
		// to 0 and wrapped in CloseProtect so the uploader can't close
		// it out from under a retry.
		var body io.Reader
		if isSeeker {
			if err := vfs.RewindTo0(seeker); err != nil {
				return err
			}
			body = vfs.NewCloseProtect(seeker)
		} else {
			body = bytes.NewReader(content.([]byte))
		}
		_, err := uploader.UploadWithContext(ctx, &s3manager.UploadInput{
			Bucket: awssdk.String(f.opt.Bucket),
			Key:    awssdk.String(key),
			Body:   body,
		})
		return err
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

// Rm removes a file or an empty directory (a directory is "removed"
// by confirming it is empty; S3 has no directory object to delete).
func (f *S3) Rm(ctx context.Context, p string) error {
	isFile, err := f.IsFile(ctx, p)
	if err != nil {
		return err
	}
	key, err := f.pathToKey(p)
	if err != nil {
		return err
	}
	client, err := f.getClient(ctx)
	if err != nil {
		return err
	}
	if !isFile {
		isDir, err := f.IsDir(ctx, p)
		if err != nil {
			return err
		}
		if !isDir {
			return pathErr("rm", p, vfs.ErrNotExist)
		}
		entries, err := f.ListDir(ctx, p, false, 1)
		if err != nil {
			return err
		}
		if len(entries) > 0 {
			return pathErr("rm", p, vfs.ErrDirNotEmpty)
		}
		return nil
	}
	err = call(ctx, func() error {
		_, err := client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
			Bucket: awssdk.String(f.opt.Bucket),
			Key:    awssdk.String(key),
		})
		return err
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

func pathErr(op, p string, sentinel error) error {
	return fmt.Errorf("%s %q: %w", op, p, sentinel)
}

// nopSeeker adapts a bytes.Buffer to vfs.Seeker for Get's internal use
// (the buffer starts empty and is only ever written from position 0).
type nopSeeker struct {
	*bytes.Buffer
}

func (n *nopSeeker) Seek(offset int64, whence int) (int64, error) {
	return 0, nil
}

// fakeWriterAt adapts an io.Writer positioned at 0 to the
// io.WriterAt the s3manager downloader requires, since downloads in
// this module are always sequential from offset 0 into a rewound
// stream.
type fakeWriterAt struct {
	w io.Writer
}

func (fw fakeWriterAt) WriteAt(p []byte, offset int64) (int, error) {
	return fw.w.Write(p)
}

var _ vfs.FileSystem = (*S3)(nil)
