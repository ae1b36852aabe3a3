package uploads

import (
	"context"
	"io"
	"strings"

	"github.com/google/uuid"
)

// Upload states reported through ProgressFunc.
const (
	StateRunning = "running"
	StateSuccess = "success"
	StateError   = "error"
)

// Progress is a snapshot of one object upload.
type Progress struct {
	Key              string
	BytesTransferred int64
	TotalBytes       int64
	State            string
}

// Percent returns completion in [0, 100]; unknown totals report 0 until success.
func (p Progress) Percent() float64 {
	if p.State == StateSuccess {
		return 100
	}
	if p.TotalBytes <= 0 {
		return 0
	}
	return float64(p.BytesTransferred) / float64(p.TotalBytes) * 100
}

// ProgressFunc receives upload progress events. May be nil.
type ProgressFunc func(Progress)

// BlobStore is the object storage used for listing images.
type BlobStore interface {
	// Put stores body under key and returns a URL the object can be downloaded from.
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64, progress ProgressFunc) (string, error)
	Delete(ctx context.Context, key string) error
}

// ImageKey derives a collision-free object key from the owner, the file name and a fresh random token.
func ImageKey(userID uuid.UUID, fileName string) string {
	return "images/" + userID.String() + "-" + SanitizeFileName(fileName) + "-" + uuid.New().String()
}

// SanitizeFileName keeps the base name and replaces anything outside [A-Za-z0-9._-].
func SanitizeFileName(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "file"
	}
	return b.String()
}

// progressReader reports bytes read through fn as the upload body is consumed.
type progressReader struct {
	r     io.Reader
	key   string
	total int64
	read  int64
	fn    ProgressFunc
}

// NewProgressReader wraps r so every Read reports progress through fn. fn may be nil.
func NewProgressReader(r io.Reader, key string, total int64, fn ProgressFunc) io.Reader {
	if fn == nil {
		return r
	}
	return &progressReader{r: r, key: key, total: total, fn: fn}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += int64(n)
		p.fn(Progress{Key: p.key, BytesTransferred: p.read, TotalBytes: p.total, State: StateRunning})
	}
	return n, err
}

// Report calls fn with p when fn is set.
func Report(fn ProgressFunc, p Progress) {
	if fn != nil {
		fn(p)
	}
}
