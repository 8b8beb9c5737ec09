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

// Subject is a saved character or model reference that Hire Model can pick.
type Subject struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	ThumbnailDataURI string    `json:"thumbnail"`
	Description      string    `json:"description,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

const subjectColumns = "id, name, thumbnail, description, created_at"

// SaveCustomSubject upserts by id.
func (s *Store) SaveCustomSubject(ctx context.Context, subject Subject) (Subject, error) {
	if strings.TrimSpace(subject.Name) == "" {
		return Subject{}, errors.New("subject name is empty")
	}
	if strings.TrimSpace(subject.ThumbnailDataURI) == "" {
		return Subject{}, errors.New("subject thumbnail is empty")
	}
	if subject.ID == "" {
		subject.ID = uuid.NewString()
	}
	if subject.CreatedAt.IsZero() {
		subject.CreatedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO custom_subjects (`+subjectColumns+`) VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             name = excluded.name,
             thumbnail = excluded.thumbnail,
             description = excluded.description,
             created_at = excluded.created_at`,
		subject.ID,
		subject.Name,
		subject.ThumbnailDataURI,
		nullableString(subject.Description),
		toMillis(subject.CreatedAt),
	)
	if err != nil {
		return Subject{}, fmt.Errorf("save subject: %w", err)
	}
	subject.CreatedAt = fromMillis(toMillis(subject.CreatedAt))
	return subject, nil
}

func (s *Store) ListCustomSubjects(ctx context.Context) ([]Subject, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+subjectColumns+` FROM custom_subjects ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	defer rows.Close()

	var out []Subject
	for rows.Next() {
		sub, err := scanSubject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subjects: %w", err)
	}
	return out, nil
}

// GetCustomSubject returns nil when the subject does not exist.
func (s *Store) GetCustomSubject(ctx context.Context, id string) (*Subject, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+subjectColumns+` FROM custom_subjects WHERE id = ?`, id)
	sub, err := scanSubject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subject: %w", err)
	}
	return &sub, nil
}

// UpdateCustomSubject edits name and thumbnail only. Empty values keep the
// stored ones.
func (s *Store) UpdateCustomSubject(ctx context.Context, id, name, thumbnail string) (Subject, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE custom_subjects
         SET name = COALESCE(NULLIF(?, ''), name),
             thumbnail = COALESCE(NULLIF(?, ''), thumbnail)
         WHERE id = ?`,
		strings.TrimSpace(name),
		thumbnail,
		id,
	)
	if err != nil {
		return Subject{}, fmt.Errorf("update subject: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return Subject{}, fmt.Errorf("update subject %s: %w", id, ErrNotFound)
	}

	sub, err := s.GetCustomSubject(ctx, id)
	if err != nil {
		return Subject{}, err
	}
	if sub == nil {
		return Subject{}, fmt.Errorf("update subject %s: %w", id, ErrNotFound)
	}
	return *sub, nil
}

func (s *Store) DeleteCustomSubject(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM custom_subjects WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete subject: %w", err)
	}
	return nil
}

func (s *Store) SaveSubjectThumbnail(ctx context.Context, modelID, dataURI string) error {
	if modelID == "" || dataURI == "" {
		return errors.New("thumbnail model id and data are required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subject_thumbnails (model_id, data_uri, updated_at) VALUES (?, ?, ?)
         ON CONFLICT(model_id) DO UPDATE SET data_uri = excluded.data_uri, updated_at = excluded.updated_at`,
		modelID, dataURI, toMillis(s.now()),
	)
	if err != nil {
		return fmt.Errorf("save thumbnail: %w", err)
	}
	return nil
}

// SubjectThumbnail reports false when nothing is cached for modelID.
func (s *Store) SubjectThumbnail(ctx context.Context, modelID string) (string, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data_uri FROM subject_thumbnails WHERE model_id = ?`, modelID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get thumbnail: %w", err)
	}
	return data, true, nil
}

func (s *Store) SubjectThumbnails(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT model_id, data_uri FROM subject_thumbnails`)
	if err != nil {
		return nil, fmt.Errorf("list thumbnails: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan thumbnail: %w", err)
		}
		out[id] = data
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate thumbnails: %w", err)
	}
	return out, nil
}

func scanSubject(scanner interface{ Scan(dest ...any) error }) (Subject, error) {
	var (
		sub     Subject
		desc    sql.NullString
		created int64
	)
	if err := scanner.Scan(&sub.ID, &sub.Name, &sub.ThumbnailDataURI, &desc, &created); err != nil {
		return Subject{}, err
	}
	sub.Description = desc.String
	sub.CreatedAt = fromMillis(created)
	return sub, nil
}
