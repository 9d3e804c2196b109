package certificate

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/MarcoPoloResearchLab/contracts/backend/internal/audit"
	"github.com/MarcoPoloResearchLab/contracts/backend/internal/blobstore"
	"github.com/MarcoPoloResearchLab/contracts/backend/internal/signatures"
	"go.uber.org/zap"
)

const certificatesPrefix = "certificates"

var errMissingBlobStore = errors.New("certificate: blob store is required")

// Publisher renders certificates and stores them as blobs.
type Publisher struct {
	store  blobstore.Store
	logger *zap.Logger
}

// NewPublisher constructs a Publisher writing to store.
func NewPublisher(store blobstore.Store, logger *zap.Logger) (*Publisher, error) {
	if store == nil {
		return nil, errMissingBlobStore
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{store: store, logger: logger}, nil
}

// Path is the blob location of the certificate of record.
func Path(record signatures.SignatureRecord) string {
	return path.Join(certificatesPrefix, record.DocumentID, record.ID+".md")
}

// Publish renders the certificate and returns the URL it was stored at.
func (publisher *Publisher) Publish(ctx context.Context, record signatures.SignatureRecord, trail []audit.Event, signer Signer) (string, error) {
	body := RenderFor(record, trail, signer)
	location, err := publisher.store.Put(ctx, Path(record), body)
	if err != nil {
		publisher.logger.Error("certificate publish failed",
			zap.String("signature_id", record.ID),
			zap.String("document_id", record.DocumentID),
			zap.Error(err))
		return "", fmt.Errorf("certificate: publish %s: %w", record.ID, err)
	}
	publisher.logger.Info("certificate published",
		zap.String("signature_id", record.ID),
		zap.String("location", location))
	return location, nil
}
