package library

import (
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"textcast/internal/errs"
	"textcast/internal/models"
)

// Tree is the whole library at a glance: every folder, source summary and
// episode.
type Tree struct {
	Folders  []models.Folder  `json:"folders"`
	Sources  []models.Source  `json:"sources"`
	Episodes []models.Episode `json:"episodes"`
}

// LibraryTree returns folders, sources and episodes in one read.
func (s *Service) LibraryTree() (Tree, error) {
	var t Tree
	var err error
	if t.Folders, err = s.store.ListFolders(s.store.DB); err != nil {
		return t, err
	}
	if t.Sources, err = s.store.ListSources(s.store.DB, nil, ""); err != nil {
		return t, err
	}
	t.Episodes, err = s.store.ListEpisodes(s.store.DB, nil, nil)
	return t, err
}

// FolderPlaylist returns the ready episodes of a folder and its subfolders,
// depth-first by folder name, oldest episode first within a folder.
func (s *Service) FolderPlaylist(folderID string) ([]models.Episode, error) {
	var playlist []models.Episode
	err := s.store.InTx(func(tx *sqlx.Tx) error {
		if err := s.requireFolder(tx, folderID); err != nil {
			return err
		}
		return s.collectPlaylist(tx, folderID, &playlist)
	})
	return playlist, err
}

func (s *Service) collectPlaylist(tx *sqlx.Tx, folderID string, out *[]models.Episode) error {
	episodes, err := s.store.ListReadyEpisodesByFolder(tx, folderID)
	if err != nil {
		return err
	}
	*out = append(*out, episodes...)

	children, err := s.store.ListChildFolders(tx, &folderID)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := s.collectPlaylist(tx, child.ID, out); err != nil {
			return err
		}
	}
	return nil
}

// CreateFolder adds a folder under parentID (nil = root).
func (s *Service) CreateFolder(name string, parentID *string) (models.Folder, error) {
	f := models.Folder{ID: uuid.NewString(), Name: name, ParentID: parentID}
	if name == "" {
		return f, errs.E(errs.KindInvalidState, "folder name is required")
	}
	err := s.store.InTx(func(tx *sqlx.Tx) error {
		if parentID != nil {
			if err := s.requireFolder(tx, *parentID); err != nil {
				return err
			}
		}
		return s.store.CreateFolder(tx, &f)
	})
	return f, err
}

// RenameFolder changes a folder's display name.
func (s *Service) RenameFolder(id, name string) error {
	if name == "" {
		return errs.E(errs.KindInvalidState, "folder name is required")
	}
	return s.store.InTx(func(tx *sqlx.Tx) error {
		return s.store.RenameFolder(tx, id, name)
	})
}

// MoveFolder reparents a folder. A move that would make the folder its own
// ancestor is refused; Folder is strictly a tree.
func (s *Service) MoveFolder(id string, parentID *string) error {
	return s.store.InTx(func(tx *sqlx.Tx) error {
		if _, err := s.store.GetFolder(tx, id); err != nil {
			return err
		}
		if parentID == nil {
			return s.store.ReparentFolder(tx, id, nil)
		}
		if *parentID == id {
			return errs.E(errs.KindInvalidState, "folder cannot contain itself")
		}
		if err := s.requireFolder(tx, *parentID); err != nil {
			return err
		}

		// Walk up from the new parent; hitting the folder means a cycle.
		cursor := parentID
		for cursor != nil {
			if *cursor == id {
				return errs.E(errs.KindInvalidState, "move would create a folder cycle")
			}
			parent, err := s.store.GetFolder(tx, *cursor)
			if err != nil {
				return err
			}
			cursor = parent.ParentID
		}
		return s.store.ReparentFolder(tx, id, parentID)
	})
}

// DeleteFolder removes a folder; its children, sources and episodes move up
// to the folder's own parent.
func (s *Service) DeleteFolder(id string) error {
	return s.store.InTx(func(tx *sqlx.Tx) error {
		f, err := s.store.GetFolder(tx, id)
		if err != nil {
			return err
		}
		return s.store.DeleteFolder(tx, id, f.ParentID)
	})
}

// CreateTag records a tag name, returning the existing row when the name is
// already taken.
func (s *Service) CreateTag(name string) (models.Tag, error) {
	if name == "" {
		return models.Tag{}, errs.E(errs.KindInvalidState, "tag name is required")
	}
	var tag models.Tag
	err := s.store.InTx(func(tx *sqlx.Tx) error {
		var err error
		tag, err = s.store.CreateTag(tx, &models.Tag{ID: uuid.NewString(), Name: name})
		return err
	})
	return tag, err
}

// ListTags returns every tag.
func (s *Service) ListTags() ([]models.Tag, error) {
	return s.store.ListTags(s.store.DB)
}

// DeleteTag removes a tag and its associations.
func (s *Service) DeleteTag(id string) error {
	return s.store.InTx(func(tx *sqlx.Tx) error {
		return s.store.DeleteTag(tx, id)
	})
}

// TagSource attaches a tag to a source.
func (s *Service) TagSource(sourceID, tagID string) error {
	return s.store.InTx(func(tx *sqlx.Tx) error {
		if _, err := s.store.GetSource(tx, sourceID); err != nil {
			return err
		}
		if _, err := s.store.GetTag(tx, tagID); err != nil {
			return err
		}
		return s.store.TagSource(tx, sourceID, tagID)
	})
}

// UntagSource detaches a tag from a source.
func (s *Service) UntagSource(sourceID, tagID string) error {
	return s.store.InTx(func(tx *sqlx.Tx) error {
		return s.store.UntagSource(tx, sourceID, tagID)
	})
}

// TagEpisode attaches a tag to an episode.
func (s *Service) TagEpisode(episodeID, tagID string) error {
	return s.store.InTx(func(tx *sqlx.Tx) error {
		if _, err := s.store.GetEpisode(tx, episodeID); err != nil {
			return err
		}
		if _, err := s.store.GetTag(tx, tagID); err != nil {
			return err
		}
		return s.store.TagEpisode(tx, episodeID, tagID)
	})
}

// UntagEpisode detaches a tag from an episode.
func (s *Service) UntagEpisode(episodeID, tagID string) error {
	return s.store.InTx(func(tx *sqlx.Tx) error {
		return s.store.UntagEpisode(tx, episodeID, tagID)
	})
}
