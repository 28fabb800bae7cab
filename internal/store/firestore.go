package store

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rumor-ml/commons.systems/spentsync/internal/domain"
	"github.com/rumor-ml/commons.systems/spentsync/internal/output"
)

// Firestore document fields
const (
	fieldLedger    = "ledger"
	fieldEntries   = "entries"
	fieldUpdatedAt = "updatedAt"
)

// Firestore keeps the ledger JSON in a single document field
type Firestore struct {
	client      *firestore.Client
	doc         *firestore.DocumentRef
	conditional bool

	// update time seen by the last Load; zero when the document was absent
	updateTime time.Time
}

// NewFirestore initializes a Firebase app and opens the ledger document
func NewFirestore(ctx context.Context, cfg Config) (*Firestore, error) {
	if cfg.ProjectID == "" || cfg.Collection == "" || cfg.Document == "" {
		return nil, fmt.Errorf("firestore store needs project_id, collection and document")
	}

	conf := &firebase.Config{ProjectID: cfg.ProjectID}

	// Application Default Credentials unless a file is configured
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, unavailable("failed to initialize Firebase app", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, unavailable("failed to create Firestore client", err)
	}

	return &Firestore{
		client:      client,
		doc:         client.Collection(cfg.Collection).Doc(cfg.Document),
		conditional: cfg.ConditionalWrite,
	}, nil
}

// Load reads the ledger document. A missing document is an empty ledger.
func (f *Firestore) Load(ctx context.Context) (domain.Ledger, error) {
	snap, err := f.doc.Get(ctx)
	if status.Code(err) == codes.NotFound {
		f.updateTime = time.Time{}
		return domain.Ledger{}, nil
	}
	if err != nil {
		return nil, unavailable("failed to get ledger document "+f.doc.Path, err)
	}

	raw, err := snap.DataAt(fieldLedger)
	if err != nil {
		return nil, unavailable("ledger document has no "+fieldLedger+" field", err)
	}
	body, ok := raw.(string)
	if !ok {
		return nil, unavailable("ledger document", fmt.Errorf("field %s is %T, want string", fieldLedger, raw))
	}

	ledger, err := output.DecodeLedger([]byte(body))
	if err != nil {
		return nil, unavailable("failed to decode ledger document", err)
	}

	f.updateTime = snap.UpdateTime
	return ledger, nil
}

// Save replaces the ledger document. With conditional writes a new document
// is created only if still absent, and an existing one is updated only if its
// update time matches the one loaded.
func (f *Firestore) Save(ctx context.Context, ledger domain.Ledger) error {
	data, err := output.EncodeLedger(ledger)
	if err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}
	now := time.Now()

	var result *firestore.WriteResult
	switch {
	case !f.conditional:
		result, err = f.doc.Set(ctx, map[string]interface{}{
			fieldLedger:    string(data),
			fieldEntries:   len(ledger),
			fieldUpdatedAt: now,
		})
	case f.updateTime.IsZero():
		result, err = f.doc.Create(ctx, map[string]interface{}{
			fieldLedger:    string(data),
			fieldEntries:   len(ledger),
			fieldUpdatedAt: now,
		})
	default:
		result, err = f.doc.Update(ctx, []firestore.Update{
			{Path: fieldLedger, Value: string(data)},
			{Path: fieldEntries, Value: len(ledger)},
			{Path: fieldUpdatedAt, Value: now},
		}, firestore.LastUpdateTime(f.updateTime))
	}

	if err != nil {
		switch status.Code(err) {
		case codes.AlreadyExists, codes.FailedPrecondition, codes.NotFound:
			return fmt.Errorf("ledger document %s changed since load: %w", f.doc.Path, domain.ErrConflict)
		}
		return unavailable("failed to write ledger document "+f.doc.Path, err)
	}

	f.updateTime = result.UpdateTime
	return nil
}

// Close closes the Firestore client
func (f *Firestore) Close() error {
	return f.client.Close()
}
