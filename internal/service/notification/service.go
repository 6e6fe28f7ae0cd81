package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"medconnect-backend/internal/domain"
	"medconnect-backend/pkg/logger"
	"medconnect-backend/pkg/push"
)

// Service bridges call signaling and appointment events to device push
// notifications for users with no live connection.
type Service struct {
	push *push.Service
}

// NewService creates a new notification service
func NewService(pushService *push.Service) *Service {
	return &Service{push: pushService}
}

// AlertIncomingCall pushes an incoming-call alert to a callee whose
// signaling socket is offline
func (s *Service) AlertIncomingCall(ctx context.Context, calleeID uuid.UUID, caller domain.Participant) error {
	return s.push.SendIncomingCallAlert(ctx, calleeID, &push.CallAlertData{
		CallerID:   caller.ID,
		CallerName: caller.DisplayName,
		CallerRole: string(caller.Role),
		Timestamp:  time.Now().Unix(),
	})
}

// AlertMissedCall notifies a callee about an unanswered call
func (s *Service) AlertMissedCall(ctx context.Context, calleeID uuid.UUID, caller domain.Participant) error {
	return s.push.SendMissedCallAlert(ctx, calleeID, caller.ID, caller.DisplayName)
}

// NotifyAppointment pushes an appointment notification to each involved
// participant. Delivery is best-effort per recipient.
func (s *Service) NotifyAppointment(ctx context.Context, n *domain.AppointmentNotification) {
	for _, userID := range n.ParticipantIDs {
		if err := s.push.SendAppointmentNotification(ctx, userID, string(n.Type), n.ID, n.Title, n.Message); err != nil {
			logger.Warn("Failed to push appointment notification",
				zap.String("user_id", userID.String()),
				zap.String("notification_id", n.ID.String()),
				zap.Error(err))
		}
	}
}
