package services

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/mmmaly/chcemvediet-sub000/internal/database/models"
	"gorm.io/gorm"
)

// BlobStore persists attachment content. Content is immutable once stored.
type BlobStore interface {
	Store(content []byte) (string, error)
	Fetch(ref string) ([]byte, error)
	Delete(ref string) error
}

// FileBlobStore keeps blobs as uuid-named files under a base directory.
type FileBlobStore struct {
	baseDir string
}

// NewFileBlobStore creates the blob directory if needed.
func NewFileBlobStore(baseDir string) (*FileBlobStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}
	return &FileBlobStore{baseDir: baseDir}, nil
}

// Store writes content under a fresh uuid ref.
func (s *FileBlobStore) Store(content []byte) (string, error) {
	ref := uuid.New().String()
	if err := os.WriteFile(filepath.Join(s.baseDir, ref), content, 0644); err != nil {
		return "", err
	}
	return ref, nil
}

// Fetch reads the blob for ref.
func (s *FileBlobStore) Fetch(ref string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, ref))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: blob %s", ErrNotFound, ref)
		}
		return nil, err
	}
	return data, nil
}

// Delete removes the blob for ref.
func (s *FileBlobStore) Delete(ref string) error {
	err := os.Remove(filepath.Join(s.baseDir, ref))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// AttachmentService is the typed-reference attachment registry. Every
// attachment belongs to exactly one owner; adopting an attachment into a new
// owner always clones the row and the blob so the source owner stays intact.
type AttachmentService struct {
	db    *gorm.DB
	blobs BlobStore
}

// NewAttachmentService creates a new AttachmentService instance.
func NewAttachmentService(db *gorm.DB, blobs BlobStore) *AttachmentService {
	return &AttachmentService{db: db, blobs: blobs}
}

// RecordOwnerID converts a numeric record id into an owner id string.
func RecordOwnerID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

// Upload stores content and registers it under the given owner. A freshly
// uploaded attachment is typically owned by the uploading session until a
// draft or action adopts it.
func (s *AttachmentService) Upload(kind models.AttachmentOwnerKind, ownerID, name, contentType string, content []byte) (*models.Attachment, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown owner kind %q", ErrValidation, kind)
	}
	if ownerID == "" || name == "" {
		return nil, fmt.Errorf("%w: owner id and name are required", ErrValidation)
	}

	ref, err := s.blobs.Store(content)
	if err != nil {
		return nil, err
	}
	att := &models.Attachment{
		OwnerKind:   kind,
		OwnerID:     ownerID,
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(content)),
		BlobRef:     ref,
	}
	if err := s.db.Create(att).Error; err != nil {
		s.blobs.Delete(ref)
		return nil, err
	}
	return att, nil
}

// Get returns one attachment by id.
func (s *AttachmentService) Get(id uint) (*models.Attachment, error) {
	var att models.Attachment
	if err := s.db.First(&att, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: attachment %d", ErrNotFound, id)
		}
		return nil, err
	}
	return &att, nil
}

// Content fetches the attachment's blob.
func (s *AttachmentService) Content(att *models.Attachment) ([]byte, error) {
	return s.blobs.Fetch(att.BlobRef)
}

// ListByOwner returns all attachments of one owner.
func (s *AttachmentService) ListByOwner(kind models.AttachmentOwnerKind, ownerID string) ([]models.Attachment, error) {
	var atts []models.Attachment
	err := s.db.
		Where("owner_kind = ? AND owner_id = ?", kind, ownerID).
		Order("id ASC").
		Find(&atts).Error
	return atts, err
}

// Owned verifies that every id in ids belongs to the given owner and returns
// the attachments. Fails with ErrAttachmentNotOwned otherwise.
func (s *AttachmentService) Owned(kind models.AttachmentOwnerKind, ownerID string, ids []uint) ([]models.Attachment, error) {
	atts := make([]models.Attachment, 0, len(ids))
	for _, id := range ids {
		att, err := s.Get(id)
		if err != nil {
			return nil, err
		}
		if att.OwnerKind != kind || att.OwnerID != ownerID {
			return nil, fmt.Errorf("%w: attachment %d", ErrAttachmentNotOwned, id)
		}
		atts = append(atts, *att)
	}
	return atts, nil
}

// CloneTo copies an attachment to a new owner inside the given transaction.
// The blob content is cloned under a fresh ref; the source attachment and its
// owner are left untouched.
func (s *AttachmentService) CloneTo(tx *gorm.DB, att *models.Attachment, kind models.AttachmentOwnerKind, ownerID string) (*models.Attachment, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown owner kind %q", ErrValidation, kind)
	}
	content, err := s.blobs.Fetch(att.BlobRef)
	if err != nil {
		return nil, err
	}
	ref, err := s.blobs.Store(content)
	if err != nil {
		return nil, err
	}
	clone := &models.Attachment{
		OwnerKind:   kind,
		OwnerID:     ownerID,
		Name:        att.Name,
		ContentType: att.ContentType,
		Size:        att.Size,
		BlobRef:     ref,
	}
	if err := tx.Create(clone).Error; err != nil {
		s.blobs.Delete(ref)
		return nil, err
	}
	return clone, nil
}

// Delete removes the attachment row and its blob.
func (s *AttachmentService) Delete(att *models.Attachment) error {
	if err := s.db.Delete(&models.Attachment{}, att.ID).Error; err != nil {
		return err
	}
	return s.blobs.Delete(att.BlobRef)
}
