package service

import (
	"context"
	"fmt"

	"github.com/punchamoorthee/mymoney/internal/domain"
	"github.com/punchamoorthee/mymoney/internal/store"
)

type TagService struct {
	store store.Store
}

func NewTagService(s store.Store) *TagService {
	return &TagService{store: s}
}

func (s *TagService) Create(ctx context.Context, userID int64, t *domain.Tag) error {
	t.OwnerID = userID
	if err := t.Validate(); err != nil {
		return err
	}
	return s.store.InsertTag(ctx, t)
}

// owned loads a tag only its owner may change.
func (s *TagService) owned(ctx context.Context, userID, id int64) (*domain.Tag, error) {
	t, err := s.store.GetTag(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.OwnerID != userID {
		return nil, fmt.Errorf("tag %d: %w", id, domain.ErrForbidden)
	}
	return t, nil
}

func (s *TagService) Update(ctx context.Context, userID int64, t *domain.Tag) error {
	cur, err := s.owned(ctx, userID, t.ID)
	if err != nil {
		return err
	}
	t.OwnerID = cur.OwnerID
	if err := t.Validate(); err != nil {
		return err
	}
	return s.store.UpdateTag(ctx, t)
}

// Delete removes the tag. Rows using it become untagged.
func (s *TagService) Delete(ctx context.Context, userID, id int64) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	return s.store.DeleteTag(ctx, id)
}

// Visible lists the tags of userID and of every user sharing an account
// with them.
func (s *TagService) Visible(ctx context.Context, userID int64) ([]domain.Tag, error) {
	return s.store.VisibleTags(ctx, userID)
}

// CheckVisible fails with ErrForbidden unless every id is a visible tag.
func (s *TagService) CheckVisible(ctx context.Context, userID int64, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	tags, err := s.Visible(ctx, userID)
	if err != nil {
		return err
	}
	visible := make(map[int64]bool, len(tags))
	for _, t := range tags {
		visible[t.ID] = true
	}
	for _, id := range ids {
		if !visible[id] {
			return fmt.Errorf("tag %d: %w", id, domain.ErrForbidden)
		}
	}
	return nil
}
