package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/snippime/internal/apperror"
	"github.com/sakif/snippime/internal/listing"
	"github.com/sakif/snippime/internal/live"
	"github.com/sakif/snippime/internal/model"
	"github.com/sakif/snippime/internal/ranking"
	"github.com/sakif/snippime/internal/repository"
)

// VoteService records up and down votes and reads them back.
type VoteService struct {
	votes    repository.VoteRepository
	snippets repository.SnippetRepository
	events   Publisher
	logger   *slog.Logger
}

func NewVoteService(
	votes repository.VoteRepository,
	snippets repository.SnippetRepository,
	events Publisher,
	logger *slog.Logger,
) *VoteService {
	if events == nil {
		events = nopPublisher{}
	}
	return &VoteService{votes: votes, snippets: snippets, events: events, logger: logger}
}

// Vote sets userID's vote on a snippet to value (-1, 0 or +1) and returns
// the snippet's aggregates as committed. Voting the same value twice is a
// no-op on the aggregates.
func (s *VoteService) Vote(ctx context.Context, userID, snippetID string, value int) (*model.VoteResult, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if !ranking.ValidVote(value) {
		return nil, apperror.ValidationFailed("value", "vote must be -1, 0 or 1")
	}

	sn, err := s.snippets.GetByID(ctx, snippetID)
	if err != nil {
		return nil, err
	}
	if !sn.VisibleTo(userID) {
		return nil, apperror.NotFound("snippet", snippetID)
	}

	res, err := s.votes.ApplyVote(ctx, userID, snippetID, value)
	if err != nil {
		s.logger.Error("vote failed",
			slog.String("snippet", snippetID),
			slog.String("user", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("applying vote: %w", err)
	}

	s.logger.Debug("vote applied",
		slog.String("snippet", snippetID),
		slog.Int("value", res.Value),
		slog.Int("score", res.Score),
	)

	// The voter's own choice is private; public topics get aggregates only.
	public := *res
	public.Value = 0
	if sn.IsPublic() {
		s.events.Publish(model.Event{Type: model.EventSnippetVoted, Topic: live.TopicFeed, ID: snippetID, Data: public})
		s.events.Publish(model.Event{Type: model.EventSnippetVoted, Topic: live.SnippetTopic(snippetID), ID: snippetID, Data: public})
	}
	s.events.Publish(model.Event{Type: model.EventSnippetVoted, Topic: live.UserTopic(userID), ID: snippetID, Data: res})
	return res, nil
}

// MyVote returns userID's current vote on a snippet, 0 when none.
func (s *VoteService) MyVote(ctx context.Context, userID, snippetID string) (int, error) {
	if err := requireUser(userID); err != nil {
		return 0, err
	}
	return s.votes.GetVote(ctx, userID, snippetID)
}

// Liked returns the snippets userID up-voted that userID can still see,
// filtered and sorted in memory. An empty sort keeps most-recent-vote order.
func (s *VoteService) Liked(ctx context.Context, userID string, f listing.SnippetFilter, sort string) ([]model.Snippet, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	liked, err := s.votes.Liked(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing liked snippets: %w", err)
	}

	visible := make([]model.Snippet, 0, len(liked))
	for _, sn := range liked {
		if sn.VisibleTo(userID) {
			visible = append(visible, sn)
		}
	}

	out := listing.FilterSnippets(visible, f)
	listing.SortSnippets(out, sort)
	return out, nil
}
