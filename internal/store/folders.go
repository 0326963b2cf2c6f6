package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"textcast/internal/errs"
	"textcast/internal/models"
)

// CreateFolder inserts a folder. Parent existence is the caller's check.
func (s *Store) CreateFolder(q sqlx.Ext, f *models.Folder) error {
	f.CreatedAt = time.Now().UTC()
	_, err := q.Exec(`
		INSERT INTO folders (id, name, parent_id, sort_order, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		f.ID, f.Name, f.ParentID, f.SortOrder, f.CreatedAt)
	return err
}

// GetFolder fetches a folder by id.
func (s *Store) GetFolder(q sqlx.Ext, id string) (models.Folder, error) {
	var f models.Folder
	err := sqlx.Get(q, &f, `SELECT * FROM folders WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return f, errs.NotFound("folder", id)
	}
	return f, err
}

// FolderExists reports whether a folder row exists.
func (s *Store) FolderExists(q sqlx.Ext, id string) (bool, error) {
	var n int
	err := sqlx.Get(q, &n, `SELECT COUNT(*) FROM folders WHERE id = ?`, id)
	return n > 0, err
}

// ListFolders returns every folder ordered by name.
func (s *Store) ListFolders(q sqlx.Ext) ([]models.Folder, error) {
	folders := []models.Folder{}
	err := sqlx.Select(q, &folders, `SELECT * FROM folders ORDER BY name COLLATE NOCASE`)
	return folders, err
}

// ListChildFolders returns the direct children of a folder (nil = roots),
// ordered by name for the depth-first playlist walk.
func (s *Store) ListChildFolders(q sqlx.Ext, parentID *string) ([]models.Folder, error) {
	folders := []models.Folder{}
	var err error
	if parentID == nil {
		err = sqlx.Select(q, &folders,
			`SELECT * FROM folders WHERE parent_id IS NULL ORDER BY name COLLATE NOCASE`)
	} else {
		err = sqlx.Select(q, &folders,
			`SELECT * FROM folders WHERE parent_id = ? ORDER BY name COLLATE NOCASE`, *parentID)
	}
	return folders, err
}

// RenameFolder updates the folder name.
func (s *Store) RenameFolder(q sqlx.Ext, id, name string) error {
	res, err := q.Exec(`UPDATE folders SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return err
	}
	return requireRow(res, "folder", id)
}

// ReparentFolder moves a folder under a new parent (nil = root). Cycle
// prevention is the caller's invariant.
func (s *Store) ReparentFolder(q sqlx.Ext, id string, parentID *string) error {
	res, err := q.Exec(`UPDATE folders SET parent_id = ? WHERE id = ?`, parentID, id)
	if err != nil {
		return err
	}
	return requireRow(res, "folder", id)
}

// DeleteFolder removes a folder after re-parenting its children, contained
// sources and episodes to the folder's own parent.
func (s *Store) DeleteFolder(q sqlx.Ext, id string, parentID *string) error {
	if _, err := q.Exec(`UPDATE folders SET parent_id = ? WHERE parent_id = ?`, parentID, id); err != nil {
		return err
	}
	if _, err := q.Exec(`UPDATE sources SET folder_id = ? WHERE folder_id = ?`, parentID, id); err != nil {
		return err
	}
	if _, err := q.Exec(`UPDATE episodes SET folder_id = ? WHERE folder_id = ?`, parentID, id); err != nil {
		return err
	}
	res, err := q.Exec(`DELETE FROM folders WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res, "folder", id)
}
