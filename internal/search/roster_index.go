package search

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"club-ledger/internal/client"
	"club-ledger/internal/models"
	"club-ledger/internal/util"
)

// memberDocument is the slice of a member record worth searching on. The
// password hash and recovery note never reach the index.
type memberDocument struct {
	MemberID  string `json:"member_id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type searchHits struct {
	Hits struct {
		Hits []struct {
			Source memberDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// RosterIndex maintains the Elasticsearch index over synced members.
type RosterIndex struct {
	es *client.ESClient
}

func NewRosterIndex(es *client.ESClient) *RosterIndex {
	return &RosterIndex{es: es}
}

func (r *RosterIndex) IndexMember(ctx context.Context, member *models.Member) error {
	doc := memberDocument{
		MemberID:  member.ID,
		Username:  member.Username,
		FirstName: member.FirstName,
		LastName:  member.LastName,
	}

	res, err := r.es.IndexDocument(ctx, r.es.RosterIndex(), member.ID, doc)
	if err != nil {
		return fmt.Errorf("failed to index member: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("failed to index member: %s", res.String())
	}

	util.Debug("Member indexed",
		zap.String("member_id", member.ID),
		zap.String("index", r.es.RosterIndex()))

	return nil
}

func (r *RosterIndex) RemoveMember(ctx context.Context, memberID string) error {
	res, err := r.es.DeleteDocument(ctx, r.es.RosterIndex(), memberID)
	if err != nil {
		return fmt.Errorf("failed to remove member from index: %w", err)
	}
	defer res.Body.Close()

	// 404 means the member was never indexed; removal is idempotent.
	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("failed to remove member from index: %s", res.String())
	}
	return nil
}

// SearchMemberIDs runs a fuzzy multi-field match over names and usernames and
// returns matching member ids in relevance order.
func (r *RosterIndex) SearchMemberIDs(ctx context.Context, query string) ([]string, error) {
	body := map[string]interface{}{
		"size": 50,
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":     query,
				"fields":    []string{"first_name^2", "last_name^2", "username"},
				"fuzziness": "AUTO",
			},
		},
	}

	res, err := r.es.Search(ctx, r.es.RosterIndex(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to search roster index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("roster search failed: %s", res.String())
	}

	var hits searchHits
	if err := r.es.ParseResponse(res, &hits); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	ids := make([]string, 0, len(hits.Hits.Hits))
	for _, h := range hits.Hits.Hits {
		ids = append(ids, h.Source.MemberID)
	}
	return ids, nil
}
