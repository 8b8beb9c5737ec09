package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type AssetKind string

const (
	AssetGenerated AssetKind = "generated"
	AssetUpload    AssetKind = "upload"
	AssetLogo      AssetKind = "logo"
)

func ParseAssetKind(value string) (AssetKind, error) {
	switch k := AssetKind(strings.ToLower(strings.TrimSpace(value))); k {
	case AssetGenerated, AssetUpload, AssetLogo:
		return k, nil
	case "":
		return "", nil
	default:
		return "", fmt.Errorf("unknown asset kind %q", value)
	}
}

// Asset is an explicitly saved image.
type Asset struct {
	ID           string    `json:"id"`
	Kind         AssetKind `json:"kind"`
	ImageDataURI string    `json:"imageDataUri"`
	Prompt       string    `json:"prompt,omitempty"`
	Title        string    `json:"title,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

const assetColumns = "id, kind, data_uri, prompt, title, created_at"

// SaveAsset inserts or replaces an asset. Missing ids and timestamps are filled in.
func (s *Store) SaveAsset(ctx context.Context, asset Asset) (Asset, error) {
	if strings.TrimSpace(asset.ImageDataURI) == "" {
		return Asset{}, errors.New("asset image is empty")
	}
	if asset.ID == "" {
		asset.ID = uuid.NewString()
	}
	if asset.Kind == "" {
		asset.Kind = AssetGenerated
	}
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO assets (`+assetColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		asset.ID,
		string(asset.Kind),
		asset.ImageDataURI,
		nullableString(asset.Prompt),
		nullableString(asset.Title),
		toMillis(asset.CreatedAt),
	)
	if err != nil {
		return Asset{}, fmt.Errorf("save asset: %w", err)
	}
	asset.CreatedAt = fromMillis(toMillis(asset.CreatedAt))
	return asset, nil
}

// ListAssets returns assets newest first. An empty kind lists every kind.
func (s *Store) ListAssets(ctx context.Context, kind AssetKind) ([]Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets`
	var args []any
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY created_at DESC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var out []Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assets: %w", err)
	}
	return out, nil
}

// GetAsset returns nil when the asset does not exist.
func (s *Store) GetAsset(ctx context.Context, id string) (*Asset, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = ?`, id)
	a, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get asset: %w", err)
	}
	return &a, nil
}

func (s *Store) DeleteAsset(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM assets WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete asset: %w", err)
	}
	return nil
}

func scanAsset(scanner interface{ Scan(dest ...any) error }) (Asset, error) {
	var (
		a       Asset
		kind    string
		prompt  sql.NullString
		title   sql.NullString
		created int64
	)
	if err := scanner.Scan(&a.ID, &kind, &a.ImageDataURI, &prompt, &title, &created); err != nil {
		return Asset{}, err
	}
	a.Kind = AssetKind(kind)
	a.Prompt = prompt.String
	a.Title = title.String
	a.CreatedAt = fromMillis(created)
	return a, nil
}
