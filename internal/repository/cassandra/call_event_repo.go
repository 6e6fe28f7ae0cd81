package cassandra

import (
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"medconnect-backend/internal/domain"
	"medconnect-backend/pkg/constants"
)

// CallEventRepository archives signaling events in Cassandra.
// Events are partitioned per user and bucketed by month so partitions
// stay bounded; rows carry a retention TTL and expire on their own.
type CallEventRepository struct {
	session *gocql.Session
}

// NewCallEventRepository creates a new CallEventRepository
func NewCallEventRepository(session *gocql.Session) *CallEventRepository {
	return &CallEventRepository{session: session}
}

// bucket derives the monthly partition bucket for a timestamp (YYYYMM).
func bucket(t time.Time) int {
	return t.Year()*100 + int(t.Month())
}

// Save archives a signaling event with the configured retention TTL
func (r *CallEventRepository) Save(event *domain.CallEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO call_events (
			user_id, bucket, created_at, peer_id, event_type, detail
		) VALUES (?, ?, ?, ?, ?, ?)
		USING TTL ?
	`

	err := r.session.Query(query,
		event.UserID,
		bucket(event.CreatedAt),
		event.CreatedAt,
		event.PeerID,
		event.EventType,
		event.Detail,
		int(constants.CallEventTTL.Seconds()),
	).Exec()

	if err != nil {
		return fmt.Errorf("failed to save call event: %w", err)
	}

	return nil
}

// GetByUser retrieves a user's archived events for one monthly bucket,
// newest first, with cursor-based pagination
func (r *CallEventRepository) GetByUser(
	userID uuid.UUID,
	monthBucket int,
	limit int,
	pageState []byte,
) ([]*domain.CallEvent, []byte, error) {
	query := `
		SELECT user_id, created_at, peer_id, event_type, detail
		FROM call_events
		WHERE user_id = ? AND bucket = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	iter := r.session.Query(query, userID, monthBucket, limit).PageState(pageState).Iter()
	defer iter.Close()

	var events []*domain.CallEvent

	for {
		event := &domain.CallEvent{}
		if !iter.Scan(
			&event.UserID,
			&event.CreatedAt,
			&event.PeerID,
			&event.EventType,
			&event.Detail,
		) {
			break
		}
		events = append(events, event)
	}

	if err := iter.Close(); err != nil {
		return nil, nil, fmt.Errorf("failed to fetch call events: %w", err)
	}

	nextPageState := iter.PageState()

	return events, nextPageState, nil
}

// GetRecent gets a user's events from the current monthly bucket
func (r *CallEventRepository) GetRecent(userID uuid.UUID, limit int) ([]*domain.CallEvent, error) {
	events, _, err := r.GetByUser(userID, bucket(time.Now()), limit, nil)
	return events, err
}

// CountByUser counts archived events in one bucket (expensive, use sparingly)
func (r *CallEventRepository) CountByUser(userID uuid.UUID, monthBucket int) (int, error) {
	query := `SELECT COUNT(*) FROM call_events WHERE user_id = ? AND bucket = ?`

	var count int
	err := r.session.Query(query, userID, monthBucket).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count call events: %w", err)
	}

	return count, nil
}
