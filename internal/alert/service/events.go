package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/wattwatch/internal/alert/domain"
	"github.com/smallbiznis/wattwatch/pkg/db/pagination"
)

func (s *Service) ListTriggeredEvents(ctx context.Context, req domain.ListEventsRequest) (domain.ListEventsResponse, error) {
	if req.OwnerID == 0 {
		return domain.ListEventsResponse{}, domain.ErrInvalidOwner
	}

	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}
	rows, err := s.repo.ListEvents(ctx, s.db, domain.EventFilter{
		OwnerID:  req.OwnerID,
		Read:     req.Read,
		Resolved: req.Resolved,
	}, page)
	if err != nil {
		return domain.ListEventsResponse{}, err
	}

	rows, info := pagination.BuildCursorPageInfo(rows, page.Size(), func(e *domain.TriggeredAlertEvent) pagination.Cursor {
		return pagination.Cursor{ID: e.ID.String()}
	})

	events := make([]domain.TriggeredAlertEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, *row)
	}
	return domain.ListEventsResponse{PageInfo: info, Events: events}, nil
}

func (s *Service) MarkRead(ctx context.Context, id snowflake.ID) (domain.TriggeredAlertEvent, error) {
	if id == 0 {
		return domain.TriggeredAlertEvent{}, domain.ErrInvalidID
	}
	// Some drivers report changed rather than matched rows, so a repeat mark affects nothing.
	if _, err := s.repo.MarkEventRead(ctx, s.db, id); err != nil {
		return domain.TriggeredAlertEvent{}, err
	}
	return s.findEvent(ctx, id)
}

func (s *Service) MarkResolved(ctx context.Context, id snowflake.ID) (domain.TriggeredAlertEvent, error) {
	if id == 0 {
		return domain.TriggeredAlertEvent{}, domain.ErrInvalidID
	}
	// Some drivers report changed rather than matched rows, so a repeat mark affects nothing.
	if _, err := s.repo.MarkEventResolved(ctx, s.db, id, s.clock.Now().UTC()); err != nil {
		return domain.TriggeredAlertEvent{}, err
	}
	return s.findEvent(ctx, id)
}

func (s *Service) findEvent(ctx context.Context, id snowflake.ID) (domain.TriggeredAlertEvent, error) {
	event, err := s.repo.FindEvent(ctx, s.db, id)
	if err != nil {
		return domain.TriggeredAlertEvent{}, err
	}
	if event == nil {
		return domain.TriggeredAlertEvent{}, domain.ErrEventNotFound
	}
	return *event, nil
}
