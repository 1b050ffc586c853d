package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mmmaly/chcemvediet-sub000/internal/database/models"
	"gorm.io/gorm"
)

// ObligeeService maintains the directory of public obligees.
type ObligeeService struct {
	db         *gorm.DB
	logService *LogService
}

// NewObligeeService creates a new ObligeeService instance.
func NewObligeeService(db *gorm.DB, logService *LogService) *ObligeeService {
	return &ObligeeService{db: db, logService: logService}
}

// Create registers an obligee. At least one delivery address is required.
func (s *ObligeeService) Create(name, street, city, zip string, emails []string) (*models.Obligee, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: obligee name is required", ErrValidation)
	}
	if len(emails) == 0 {
		return nil, fmt.Errorf("%w: obligee needs at least one email", ErrValidation)
	}

	o := &models.Obligee{
		Name:   name,
		Street: street,
		City:   city,
		Zip:    zip,
		Active: true,
	}
	o.SetEmailList(emails)
	if err := s.db.Create(o).Error; err != nil {
		return nil, err
	}

	s.logService.LogInfo(0, models.LogModuleInforequest, "obligee_create", "Obligee registered", map[string]interface{}{
		"obligee_id": o.ID,
		"name":       o.Name,
	})
	return o, nil
}

// Get returns one obligee.
func (s *ObligeeService) Get(id uint) (*models.Obligee, error) {
	var o models.Obligee
	if err := s.db.First(&o, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: obligee %d", ErrNotFound, id)
		}
		return nil, err
	}
	return &o, nil
}

// List returns obligees, optionally filtered by a name substring. Inactive
// obligees are included; new inforequests against them are refused at
// creation time instead.
func (s *ObligeeService) List(search string, limit int) ([]models.Obligee, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	q := s.db.Order("name ASC").Limit(limit)
	if search != "" {
		q = q.Where("name LIKE ?", "%"+search+"%")
	}
	var os []models.Obligee
	err := q.Find(&os).Error
	return os, err
}

// SetActive flips the directory flag. Existing inforequests keep their
// frozen snapshot either way.
func (s *ObligeeService) SetActive(id uint, active bool) error {
	res := s.db.Model(&models.Obligee{}).Where("id = ?", id).Update("active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: obligee %d", ErrNotFound, id)
	}
	return nil
}
