// Package firestore stores recurring expense definitions in Cloud Firestore,
// under users/{userID}/recurringExpenses/{definitionID}.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"github.com/dvloznov/finance-recurring/internal/domain"
	"github.com/dvloznov/finance-recurring/internal/engine"
	"github.com/dvloznov/finance-recurring/internal/logger"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	usersCollection       = "users"
	definitionsCollection = "recurringExpenses"
)

// DefinitionRepository implements engine.DefinitionRepository on Firestore.
type DefinitionRepository struct {
	client *firestore.Client
}

// NewDefinitionRepository initializes a Firebase app for projectID and opens
// its Firestore client. credentialsFile may be empty to use application
// default credentials (or FIRESTORE_EMULATOR_HOST).
func NewDefinitionRepository(ctx context.Context, projectID, credentialsFile string) (*DefinitionRepository, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("project_id", projectID).
		Msg("Connected to Firestore")

	return &DefinitionRepository{client: client}, nil
}

// NewDefinitionRepositoryWithClient wraps an existing Firestore client.
func NewDefinitionRepositoryWithClient(client *firestore.Client) *DefinitionRepository {
	return &DefinitionRepository{client: client}
}

// Close closes the underlying Firestore client.
func (r *DefinitionRepository) Close() error {
	return r.client.Close()
}

func (r *DefinitionRepository) definitions(userID string) *firestore.CollectionRef {
	return r.client.Collection(usersCollection).Doc(userID).Collection(definitionsCollection)
}

// PutDefinition creates or replaces a definition document.
func (r *DefinitionRepository) PutDefinition(ctx context.Context, def domain.RecurringExpenseDefinition) error {
	if def.ID == "" || def.UserID == "" {
		return errors.New("PutDefinition: definition ID and user ID are required")
	}

	if _, err := r.definitions(def.UserID).Doc(def.ID).Set(ctx, newDefinitionDoc(def)); err != nil {
		return fmt.Errorf("PutDefinition: %w", err)
	}
	return nil
}

// GetDefinition reads a single definition.
func (r *DefinitionRepository) GetDefinition(ctx context.Context, userID, id string) (domain.RecurringExpenseDefinition, error) {
	snap, err := r.definitions(userID).Doc(id).Get(ctx)
	if err != nil {
		return domain.RecurringExpenseDefinition{}, fmt.Errorf("GetDefinition: %w", err)
	}
	return decodeSnapshot(userID, snap)
}

// LoadActiveDefinitions implements engine.DefinitionRepository.
func (r *DefinitionRepository) LoadActiveDefinitions(ctx context.Context, userID string) ([]domain.RecurringExpenseDefinition, error) {
	log := logger.FromContext(ctx)

	iter := r.definitions(userID).Where("isActive", "==", true).Documents(ctx)
	defer iter.Stop()

	var result []domain.RecurringExpenseDefinition
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("LoadActiveDefinitions: %w", err)
		}

		def, err := decodeSnapshot(userID, snap)
		if err != nil {
			log.Warn().Err(err).Str("definition_id", snap.Ref.ID).Msg("Skipping undecodable definition document")
			continue
		}
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// SaveDefinitionUpdate implements engine.DefinitionRepository. The read and
// the write run in one Firestore transaction so a concurrent advance is
// detected as ErrStaleDefinition.
func (r *DefinitionRepository) SaveDefinitionUpdate(ctx context.Context, userID string, upd domain.DefinitionUpdate) error {
	ref := r.definitions(userID).Doc(upd.DefinitionID)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return fmt.Errorf("definition not found: %s", upd.DefinitionID)
			}
			return err
		}

		var doc definitionDoc
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("failed to decode definition: %w", err)
		}
		current := doc.effectiveNextOccurrence()
		if current != upd.ExpectedNextOccurrence.String() {
			return fmt.Errorf("definition %s at %s, update expects %s: %w",
				upd.DefinitionID, current, upd.ExpectedNextOccurrence, engine.ErrStaleDefinition)
		}

		return tx.Update(ref, []firestore.Update{
			{Path: "nextOccurrence", Value: upd.NextOccurrence.String()},
			{Path: "totalGenerated", Value: upd.TotalGenerated},
			{Path: "updatedAt", Value: firestore.ServerTimestamp},
		})
	})
	if err != nil {
		return fmt.Errorf("SaveDefinitionUpdate: %w", err)
	}
	return nil
}

func decodeSnapshot(userID string, snap *firestore.DocumentSnapshot) (domain.RecurringExpenseDefinition, error) {
	var doc definitionDoc
	if err := snap.DataTo(&doc); err != nil {
		return domain.RecurringExpenseDefinition{}, fmt.Errorf("failed to decode definition %s: %w", snap.Ref.ID, err)
	}
	return doc.definition(snap.Ref.ID, userID), nil
}

var _ engine.DefinitionRepository = (*DefinitionRepository)(nil)
