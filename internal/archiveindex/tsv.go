package archiveindex

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/jladan/glacier-upload/internal/common"
	"github.com/jladan/glacier-upload/internal/models"
)

// TSVRepository appends rows to a tab-separated file with a header line.
// Fields containing tabs, quotes or newlines are quoted CSV-style.
type TSVRepository struct {
	path string
	mu   sync.Mutex
}

func NewTSVRepository(path string) *TSVRepository {
	return &TSVRepository{path: path}
}

func (r *TSVRepository) Record(ctx context.Context, row *models.ArchiveIndexRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.readAll()
	if err != nil {
		return err
	}
	for _, e := range existing {
		if e.JobID == row.JobID {
			return fmt.Errorf("job %s: %w", row.JobID, common.ErrDuplicateJob)
		}
	}

	f, err := os.OpenFile(r.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o640)
	if err != nil {
		return fmt.Errorf("open index %s: %w", r.path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = '\t'
	if len(existing) == 0 {
		if st, err := f.Stat(); err == nil && st.Size() == 0 {
			if err := w.Write(Columns); err != nil {
				return err
			}
		}
	}
	if err := w.Write(encodeRow(row)); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write index %s: %w", r.path, err)
	}
	return f.Sync()
}

func (r *TSVRepository) Lookup(ctx context.Context, filePath string) ([]*models.ArchiveIndexRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.readAll()
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(all, func(e *models.ArchiveIndexRow) bool { return e.FilePath != filePath }), nil
}

func (r *TSVRepository) List(ctx context.Context) ([]*models.ArchiveIndexRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readAll()
}

func (r *TSVRepository) readAll() ([]*models.ArchiveIndexRow, error) {
	f, err := os.Open(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", r.path, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.Comma = '\t'
	cr.FieldsPerRecord = len(Columns)

	var result []*models.ArchiveIndexRow
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read index %s: %w", r.path, err)
		}
		if line == 1 && slices.Equal(rec, Columns) {
			continue
		}
		row, err := decodeRow(rec)
		if err != nil {
			return nil, fmt.Errorf("index %s line %d: %w", r.path, line, err)
		}
		result = append(result, row)
	}
	return result, nil
}

func encodeRow(row *models.ArchiveIndexRow) []string {
	return []string{
		row.FilePath,
		row.Description,
		row.ArchiveID,
		row.CompletedAt.UTC().Format(time.RFC3339Nano),
		row.JobID,
		row.TreeHash,
		strconv.FormatInt(row.Size, 10),
	}
}

func decodeRow(rec []string) (*models.ArchiveIndexRow, error) {
	completedAt, err := time.Parse(time.RFC3339Nano, rec[3])
	if err != nil {
		return nil, fmt.Errorf("bad completed_at: %w", err)
	}
	size, err := strconv.ParseInt(rec[6], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad size: %w", err)
	}
	return &models.ArchiveIndexRow{
		FilePath:    rec[0],
		Description: rec[1],
		ArchiveID:   rec[2],
		CompletedAt: completedAt,
		JobID:       rec[4],
		TreeHash:    rec[5],
		Size:        size,
	}, nil
}
