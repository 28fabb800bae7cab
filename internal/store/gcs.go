package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/rumor-ml/commons.systems/spentsync/internal/domain"
	"github.com/rumor-ml/commons.systems/spentsync/internal/output"
)

// GCS keeps the ledger as one JSON object in a Cloud Storage bucket.
// The bucket's object versioning keeps the revision history.
type GCS struct {
	client      *storage.Client
	bucket      string
	object      string
	conditional bool

	// generation seen by the last Load; 0 when the object was absent
	generation int64
}

// NewGCS creates a storage client for the configured object
func NewGCS(ctx context.Context, cfg Config) (*GCS, error) {
	if cfg.Bucket == "" || cfg.Object == "" {
		return nil, fmt.Errorf("gcs store needs bucket and object")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, unavailable("create storage client", err)
	}

	return &GCS{
		client:      client,
		bucket:      cfg.Bucket,
		object:      cfg.Object,
		conditional: cfg.ConditionalWrite,
	}, nil
}

func (g *GCS) handle() *storage.ObjectHandle {
	return g.client.Bucket(g.bucket).Object(g.object)
}

// Load downloads the ledger. A missing object is an empty ledger.
func (g *GCS) Load(ctx context.Context) (domain.Ledger, error) {
	r, err := g.handle().NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		g.generation = 0
		return domain.Ledger{}, nil
	}
	if err != nil {
		return nil, unavailable(fmt.Sprintf("open gs://%s/%s", g.bucket, g.object), err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, unavailable("read object data", err)
	}

	ledger, err := output.DecodeLedger(data)
	if err != nil {
		return nil, unavailable(fmt.Sprintf("decode gs://%s/%s", g.bucket, g.object), err)
	}

	g.generation = r.Attrs.Generation
	return ledger, nil
}

// Save uploads the ledger, replacing the object. With conditional writes the
// upload only succeeds if the object generation is still the one loaded.
func (g *GCS) Save(ctx context.Context, ledger domain.Ledger) error {
	data, err := output.EncodeLedger(ledger)
	if err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}

	obj := g.handle()
	if g.conditional {
		obj = obj.If(g.conditions())
	}

	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"

	if _, err := w.Write(data); err != nil {
		w.Close()
		return g.writeError(err)
	}
	// Close finalizes the upload; precondition failures surface here
	if err := w.Close(); err != nil {
		return g.writeError(err)
	}

	if attrs := w.Attrs(); attrs != nil {
		g.generation = attrs.Generation
	}
	return nil
}

func (g *GCS) conditions() storage.Conditions {
	if g.generation == 0 {
		return storage.Conditions{DoesNotExist: true}
	}
	return storage.Conditions{GenerationMatch: g.generation}
}

func (g *GCS) writeError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
		return fmt.Errorf("gs://%s/%s changed since generation %d: %w", g.bucket, g.object, g.generation, domain.ErrConflict)
	}
	return unavailable(fmt.Sprintf("write gs://%s/%s", g.bucket, g.object), err)
}

// Close releases the storage client
func (g *GCS) Close() error {
	return g.client.Close()
}
