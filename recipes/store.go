package recipes

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/recipebox/recipebox/errors"
	"github.com/recipebox/recipebox/logger"
)

// Store persists recipes in SQLite.
type Store struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewStore creates a store over a migrated database.
func NewStore(db *sql.DB, log *zap.SugaredLogger) *Store {
	return &Store{db: db, logger: logger.OrNop(log)}
}

// Create validates r and inserts it. On success r.ID and r.CreatedAt are set
// and r is returned.
func (s *Store) Create(ctx context.Context, r *Recipe) (*Recipe, error) {
	if err := Validate(r); err != nil {
		return nil, err
	}

	ingredients, err := json.Marshal(r.Ingredients)
	if err != nil {
		return nil, errors.Wrap(err, "encode ingredients")
	}
	instructions, err := json.Marshal(r.Instructions)
	if err != nil {
		return nil, errors.Wrap(err, "encode instructions")
	}

	createdAt := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO recipes (user_id, title, description, image_data, cover_type,
			prep_time, cook_time, servings, difficulty, ingredients, instructions, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.UserID, r.Title, r.Description, r.ImageData, r.CoverType,
		r.PrepTime, r.CookTime, r.Servings, r.Difficulty,
		string(ingredients), string(instructions), createdAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, "insert recipe")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "read recipe id")
	}

	r.ID = id
	r.CreatedAt = createdAt
	s.logger.Infow("Recipe saved",
		logger.FieldRecipeID, id,
		logger.FieldUserID, r.UserID,
		"title", r.Title,
	)
	return r, nil
}

// Get returns recipe id if it belongs to userID. Recipes owned by someone
// else are reported as not found.
func (s *Store) Get(ctx context.Context, id int64, userID string) (*Recipe, error) {
	var (
		r                         Recipe
		ingredients, instructions string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, description, image_data, cover_type,
			prep_time, cook_time, servings, difficulty, ingredients, instructions, created_at
		FROM recipes WHERE id = ? AND user_id = ?`, id, userID,
	).Scan(
		&r.ID, &r.UserID, &r.Title, &r.Description, &r.ImageData, &r.CoverType,
		&r.PrepTime, &r.CookTime, &r.Servings, &r.Difficulty, &ingredients, &instructions, &r.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("recipe %d not found", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "query recipe %d", id)
	}

	if err := json.Unmarshal([]byte(ingredients), &r.Ingredients); err != nil {
		return nil, errors.Wrapf(err, "decode ingredients of recipe %d", id)
	}
	if err := json.Unmarshal([]byte(instructions), &r.Instructions); err != nil {
		return nil, errors.Wrapf(err, "decode instructions of recipe %d", id)
	}
	return &r, nil
}
