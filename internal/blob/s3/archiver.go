package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/security-alliance/uniswapx-service/internal/domain"
)

// Archiver implements domain.RejectionArchive. Records are written as
// pretty-printed JSON under
//
//	<prefix>/<yyyy>/<mm>/<dd>/<chainId>/<uuid>.json
type Archiver struct {
	writer domain.BlobWriter
	prefix string
	newID  func() string
}

// NewArchiver returns an Archiver writing through w. An empty prefix puts
// records at the bucket root.
func NewArchiver(w domain.BlobWriter, prefix string) *Archiver {
	return &Archiver{
		writer: w,
		prefix: strings.Trim(prefix, "/"),
		newID:  func() string { return uuid.NewString() },
	}
}

// Archive writes rec and returns its object key.
func (a *Archiver) Archive(ctx context.Context, rec domain.RejectedSubmission) (string, error) {
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}
	body, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal rejection: %w", err)
	}

	key := a.key(rec)
	if err := a.writer.Put(ctx, key, bytes.NewReader(body), "application/json"); err != nil {
		return "", err
	}
	return key, nil
}

func (a *Archiver) key(rec domain.RejectedSubmission) string {
	ts := rec.ReceivedAt.UTC()
	chain := "unknown"
	if rec.ChainID > 0 {
		chain = strconv.FormatInt(rec.ChainID, 10)
	}
	return path.Join(a.prefix, ts.Format("2006/01/02"), chain, a.newID()+".json")
}
