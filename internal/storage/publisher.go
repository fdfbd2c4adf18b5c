package storage

import (
	"context"
	"fmt"
	"io/fs"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Uploader is the object store surface the publisher needs.
type Uploader interface {
	UploadFile(ctx context.Context, objectKey, path, contentType string) (int64, error)
}

// PublishResult summarises one publish pass.
type PublishResult struct {
	Uploaded int
	Failed   int
	Bytes    int64
	Errors   []error
}

// Publisher mirrors the output tree into a bucket.
type Publisher struct {
	uploader Uploader
	prefix   string
	workers  int
	logger   *logrus.Logger
}

func NewPublisher(uploader Uploader, prefix string, workers int, logger *logrus.Logger) *Publisher {
	if workers <= 0 {
		workers = 1
	}
	return &Publisher{
		uploader: uploader,
		prefix:   strings.Trim(prefix, "/"),
		workers:  workers,
		logger:   logger,
	}
}

// Publish uploads every regular file under root except dotfiles and
// unfinished .tmp writes. Upload failures are counted, not returned; the
// error is reserved for walk failures and cancellation.
func (p *Publisher) Publish(ctx context.Context, root string) (PublishResult, error) {
	var files []string
	err := filepath.WalkDir(root, func(fp string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if fp != root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp") || !d.Type().IsRegular() {
			return nil
		}
		files = append(files, fp)
		return nil
	})
	if err != nil {
		return PublishResult{}, fmt.Errorf("walk %s: %w", root, err)
	}

	var (
		res      PublishResult
		uploaded atomic.Int64
		bytes    atomic.Int64
		mu       sync.Mutex
	)

	var g errgroup.Group
	g.SetLimit(p.workers)
	for _, fp := range files {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			key, err := ObjectKey(p.prefix, root, fp)
			if err == nil {
				var n int64
				n, err = p.uploader.UploadFile(ctx, key, fp, ContentType(fp))
				if err == nil {
					uploaded.Add(1)
					bytes.Add(n)
					if p.logger != nil {
						p.logger.WithFields(logrus.Fields{"file": fp, "key": key}).Debug("Uploaded")
					}
					return nil
				}
			}
			mu.Lock()
			res.Failed++
			res.Errors = append(res.Errors, err)
			mu.Unlock()
			if p.logger != nil {
				p.logger.WithFields(logrus.Fields{"file": fp, "operation": "publish"}).WithError(err).Error("Upload failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	res.Uploaded = int(uploaded.Load())
	res.Bytes = bytes.Load()
	return res, ctx.Err()
}

// ObjectKey maps a file under root to prefix/<relative slash path>.
func ObjectKey(prefix, root, file string) (string, error) {
	rel, err := filepath.Rel(root, file)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is not under %s", file, root)
	}
	rel = filepath.ToSlash(rel)
	if prefix == "" {
		return rel, nil
	}
	return path.Join(prefix, rel), nil
}

// ContentType returns the MIME type for a derivative by extension.
func ContentType(file string) string {
	ext := strings.ToLower(filepath.Ext(file))
	switch ext {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".avif":
		return "image/avif"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
