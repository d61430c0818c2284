package report

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultRetention is how long asynchronously generated PDFs stay downloadable.
const DefaultRetention = 24 * time.Hour

// PDFStore keeps rendered PDFs in Redis until they expire.
type PDFStore struct {
	client    *redis.Client
	retention time.Duration
}

// NewPDFStore builds a store. retention <= 0 uses DefaultRetention.
func NewPDFStore(client *redis.Client, retention time.Duration) *PDFStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &PDFStore{client: client, retention: retention}
}

// Put stores the PDF of a generated report.
func (s *PDFStore) Put(ctx context.Context, id uuid.UUID, pdf []byte) error {
	return s.client.Set(ctx, pdfKey(id), pdf, s.retention).Err()
}

// Get loads a stored PDF. Expired or unknown ids are ErrNotFound.
func (s *PDFStore) Get(ctx context.Context, id uuid.UUID) ([]byte, error) {
	pdf, err := s.client.Get(ctx, pdfKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return pdf, err
}

// Has reports whether a PDF is still stored.
func (s *PDFStore) Has(ctx context.Context, id uuid.UUID) (bool, error) {
	n, err := s.client.Exists(ctx, pdfKey(id)).Result()
	return n > 0, err
}

// Delete drops a stored PDF.
func (s *PDFStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.client.Del(ctx, pdfKey(id)).Err()
}

func pdfKey(id uuid.UUID) string {
	return "report:pdf:" + id.String()
}
