package repository

import (
	"context"

	"gorm.io/gorm"

	"taskboard/internal/model"
	"taskboard/internal/recurring"
)

// Store is the gorm-backed recurring.Store.
type Store struct {
	*TaskRepository
	boards *BoardRepository
}

var _ recurring.Store = (*Store)(nil)

func NewStore(db *gorm.DB) *Store {
	return &Store{TaskRepository: NewTaskRepository(db), boards: NewBoardRepository(db)}
}

func (s *Store) BoardStatusOptions(ctx context.Context, boardID string) ([]model.StatusOption, error) {
	return s.boards.StatusOptions(ctx, boardID)
}
