package repository

import (
	"fmt"

	"gorm.io/gorm"

	"medichat/internal/model"
)

type ReportRepository struct {
	db *gorm.DB
}

func NewReportRepository(db *gorm.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

func (r *ReportRepository) ListByUserID(userID uint) ([]model.Report, error) {
	var list []model.Report
	if err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list reports failed: %w", err)
	}
	return list, nil
}

func (r *ReportRepository) ListBySessionID(sessionID, userID uint) ([]model.Report, error) {
	var list []model.Report
	if err := r.db.Where("session_id = ? AND user_id = ?", sessionID, userID).
		Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list session reports failed: %w", err)
	}
	return list, nil
}
