package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// RejectedSubmission is the diagnostics record kept for a submission that
// could not be decoded.
type RejectedSubmission struct {
	RequestID    string    `json:"requestId,omitempty"`
	QuoteID      string    `json:"quoteId,omitempty"`
	ChainID      int64     `json:"chainId"`
	OrderType    OrderType `json:"orderType,omitempty"`
	EncodedOrder string    `json:"encodedOrder"`
	Signature    string    `json:"signature"`
	Kind         string    `json:"kind"`
	Reason       string    `json:"reason"`
	ReceivedAt   time.Time `json:"receivedAt"`
}

// RejectionArchive stores rejected submissions for later inspection and
// returns the key the record was written under.
type RejectionArchive interface {
	Archive(ctx context.Context, rec RejectedSubmission) (string, error)
}
