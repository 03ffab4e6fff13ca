package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"taskboard/internal/model"
)

// BoardRepository manages boards and their status columns.
type BoardRepository struct {
	db *gorm.DB
}

func NewBoardRepository(db *gorm.DB) *BoardRepository {
	return &BoardRepository{db: db}
}

// Create stores the board together with its status options.
func (r *BoardRepository) Create(ctx context.Context, board *model.Board) error {
	if err := r.db.WithContext(ctx).Create(board).Error; err != nil {
		return fmt.Errorf("create board: %w", err)
	}
	return nil
}

func (r *BoardRepository) GetByID(ctx context.Context, id string) (*model.Board, error) {
	var board model.Board
	err := r.db.WithContext(ctx).
		Preload("StatusOptions", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Where("id = ?", id).
		First(&board).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("board %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find board: %w", err)
	}
	return &board, nil
}

func (r *BoardRepository) ListByOrganization(ctx context.Context, orgID string) ([]model.Board, error) {
	var boards []model.Board
	if err := r.db.WithContext(ctx).Where("organization_id = ?", orgID).Order("name ASC").Find(&boards).Error; err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	return boards, nil
}

// StatusOptions returns the board's statuses, lowest position first.
func (r *BoardRepository) StatusOptions(ctx context.Context, boardID string) ([]model.StatusOption, error) {
	var opts []model.StatusOption
	if err := r.db.WithContext(ctx).Where("board_id = ?", boardID).Order("position, id").Find(&opts).Error; err != nil {
		return nil, fmt.Errorf("list status options: %w", err)
	}
	return opts, nil
}
