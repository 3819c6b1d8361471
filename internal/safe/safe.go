// internal/safe/safe.go
package safe

import (
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"ovc/internal/errors"
	"ovc/internal/logging"
	"ovc/shared/types"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

var ErrBlobNotFound = stderrors.New("blob not found")

// Layout maps branches and revisions to directories below the metadata root.
type Layout struct {
	Root string
}

func (l Layout) BranchDir(branch int) string {
	return filepath.Join(l.Root, "b"+strconv.Itoa(branch))
}

func (l Layout) RevisionDir(branch, revision int) string {
	return filepath.Join(l.BranchDir(branch), "r"+strconv.Itoa(revision))
}

func (l Layout) BlobPath(branch, revision int, nameHash string) string {
	return filepath.Join(l.RevisionDir(branch, revision), nameHash)
}

// Safe stores whole-file blobs inside revision directories. A blob is named
// after the hash of the path it belongs to and only written in revisions
// where that path was added or modified.
type Safe struct {
	layout   Layout
	compress bool
	cm       *compressionManager
	cache    *lru.Cache[string, []byte] // decompressed small blobs
	maxCache int64
	logger   *zap.Logger
}

// Options configures Safe behavior
type Options struct {
	Root         string // metadata root holding the b<N> directories
	Compress     bool   // blobs are zstd frames
	CacheSize    int    // number of blobs to cache
	MaxCacheBlob int64  // largest blob kept in the cache
	Compression  CompressionOptions
	Logger       *zap.Logger
}

// New creates a new Safe instance
func New(opts Options) (*Safe, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("root directory is required")
	}

	// Use reasonable defaults
	if opts.CacheSize == 0 {
		opts.CacheSize = 256
	}
	if opts.MaxCacheBlob == 0 {
		opts.MaxCacheBlob = 256 * 1024
	}
	if opts.Compression.Level == 0 {
		opts.Compression = DefaultCompressionOptions()
	}

	cache, err := lru.New[string, []byte](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	cm, err := newCompressionManager(opts.Compression)
	if err != nil {
		return nil, fmt.Errorf("creating compression manager: %w", err)
	}

	return &Safe{
		layout:   Layout{Root: opts.Root},
		compress: opts.Compress,
		cm:       cm,
		cache:    cache,
		maxCache: opts.MaxCacheBlob,
		logger:   logging.OrNop(opts.Logger),
	}, nil
}

func (s *Safe) Layout() Layout {
	return s.layout
}

// Store copies the file at src into the blob named nameHash of the given
// revision and returns the SHA-256 of the uncompressed content. The revision
// directory is created on demand.
func (s *Safe) Store(branch, revision int, nameHash, src string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	dir := s.layout.RevisionDir(branch, revision)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating revision directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".blob-*")
	if err != nil {
		return "", fmt.Errorf("creating blob: %w", err)
	}
	defer os.Remove(tmp.Name())

	hasher := sha256.New()
	reader := io.TeeReader(in, hasher)
	if s.compress {
		_, err = s.cm.compressStream(tmp, reader)
	} else {
		_, err = io.Copy(tmp, reader)
	}
	if err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing blob for %s: %w", src, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing blob: %w", err)
	}

	if err := os.Rename(tmp.Name(), filepath.Join(dir, nameHash)); err != nil {
		return "", fmt.Errorf("committing blob: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// CopyBlob duplicates the nearest stored blob for nameHash at or below
// fromRevision of fromBranch into toBranch/toRevision, keeping its encoding.
func (s *Safe) CopyBlob(fromBranch, fromRevision, toBranch, toRevision int, nameHash string) error {
	found, err := s.Locate(fromBranch, fromRevision, nameHash)
	if err != nil {
		return err
	}

	src, err := os.Open(s.layout.BlobPath(fromBranch, found, nameHash))
	if err != nil {
		return fmt.Errorf("opening blob: %w", err)
	}
	defer src.Close()

	dir := s.layout.RevisionDir(toBranch, toRevision)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating revision directory: %w", err)
	}

	dst, err := os.Create(filepath.Join(dir, nameHash))
	if err != nil {
		return fmt.Errorf("creating blob copy: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("copying blob: %w", err)
	}
	return dst.Close()
}

// Locate finds the nearest revision at or below revision whose directory
// physically holds the blob nameHash.
func (s *Safe) Locate(branch, revision int, nameHash string) (int, error) {
	for r := revision; r >= 0; r-- {
		_, err := os.Stat(s.layout.BlobPath(branch, r, nameHash))
		if err == nil {
			return r, nil
		}
		if !os.IsNotExist(err) {
			return 0, fmt.Errorf("checking blob in r%d: %w", r, err)
		}
	}
	return 0, errors.Integrity(ErrBlobNotFound,
		"no revision of branch %d at or below %d stores blob %s", branch, revision, nameHash)
}

// ReadOrCopy returns the content of the nearest blob for nameHash, or,
// when dest is set, streams it into dest and returns nil content.
func (s *Safe) ReadOrCopy(branch, revision int, nameHash, dest string) ([]byte, error) {
	if dest == "" {
		return s.Read(branch, revision, nameHash)
	}
	_, err := s.copyTo(branch, revision, nameHash, dest)
	return nil, err
}

// Read returns the uncompressed content of the nearest blob for nameHash.
func (s *Safe) Read(branch, revision int, nameHash string) ([]byte, error) {
	found, err := s.Locate(branch, revision, nameHash)
	if err != nil {
		return nil, err
	}

	key := cacheKey(branch, found, nameHash)
	if content, ok := s.cache.Get(key); ok {
		return content, nil
	}

	content, err := os.ReadFile(s.layout.BlobPath(branch, found, nameHash))
	if err != nil {
		return nil, fmt.Errorf("reading blob: %w", err)
	}

	if s.compress {
		content, err = s.cm.decompress(content)
		if err != nil {
			return nil, errors.Integrity(err, "decompressing blob %s", nameHash)
		}
	}

	if int64(len(content)) <= s.maxCache {
		s.cache.Add(key, content)
	}
	return content, nil
}

// Restore materialises entry as the file dest: an empty file for zero-size
// entries, otherwise the nearest stored blob, followed by the recorded mtime.
func (s *Safe) Restore(dest string, branch, revision int, entry shared.PathEntry) error {
	if entry.IsDeleted() {
		return fmt.Errorf("cannot restore deleted entry to %s", dest)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}

	if entry.Size == 0 {
		if err := os.WriteFile(dest, nil, 0644); err != nil {
			return fmt.Errorf("creating empty file: %w", err)
		}
	} else {
		hash, err := s.copyTo(branch, revision, entry.NameHash, dest)
		if err != nil {
			return err
		}
		if entry.ContentHash != "" && hash != entry.ContentHash {
			return errors.Integrity(nil, "restored content of %s does not match recorded hash", dest)
		}
	}

	mtime := time.UnixMilli(entry.MTime)
	if err := os.Chtimes(dest, mtime, mtime); err != nil {
		return fmt.Errorf("setting modification time: %w", err)
	}

	s.logger.Debug("restored file",
		zap.String("path", dest),
		zap.Int("branch", branch),
		zap.Int("revision", revision))
	return nil
}

func (s *Safe) copyTo(branch, revision int, nameHash, dest string) (string, error) {
	found, err := s.Locate(branch, revision, nameHash)
	if err != nil {
		return "", err
	}

	src, err := os.Open(s.layout.BlobPath(branch, found, nameHash))
	if err != nil {
		return "", fmt.Errorf("opening blob: %w", err)
	}
	defer src.Close()

	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", dest, err)
	}

	hasher := sha256.New()
	w := io.MultiWriter(out, hasher)
	if s.compress {
		err = s.cm.decompressTo(w, src)
	} else {
		_, err = io.Copy(w, src)
	}
	if err != nil {
		out.Close()
		return "", errors.Integrity(err, "copying blob %s to %s", nameHash, dest)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("closing %s: %w", dest, err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Purge drops cached blobs; used when a branch directory is removed and its
// number may be reused.
func (s *Safe) Purge() {
	s.cache.Purge()
}

func cacheKey(branch, revision int, nameHash string) string {
	return strconv.Itoa(branch) + "/" + strconv.Itoa(revision) + "/" + nameHash
}
