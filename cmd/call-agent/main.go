// Command call-agent is a headless signaling client used for smoke and
// soak testing of the call service: it connects to the signaling hub as
// one portal user, answers incoming calls, and can place an outgoing
// call to a peer. Media tracks are created but no capture hardware is
// bound, so the agent exercises the full signaling and negotiation path
// without rendering anything.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"medconnect-backend/internal/call"
	"medconnect-backend/internal/callview"
	"medconnect-backend/internal/consult"
	"medconnect-backend/internal/domain"
	"medconnect-backend/internal/signaling"
	"medconnect-backend/pkg/constants"
	"medconnect-backend/pkg/env"
	"medconnect-backend/pkg/logger"
)

// logToasts writes user-facing call events to the structured log instead
// of a screen.
type logToasts struct{}

func (logToasts) Toast(title, message string) {
	logger.Info("Toast", zap.String("title", title), zap.String("message", message))
}

// consultationAPISink submits the post-consultation form to the call
// service's REST API.
type consultationAPISink struct {
	baseURL string
	token   string
	client  *http.Client
}

func (s *consultationAPISink) SaveConsultation(ctx context.Context, record *domain.ConsultationRecord) error {
	body, err := json.Marshal(map[string]any{
		"appointment_id":     record.AppointmentID,
		"patient_id":         record.PatientID,
		"diagnosis":          record.Diagnosis,
		"notes":              record.Notes,
		"urgency":            record.Urgency,
		"follow_up_required": record.FollowUpRequired,
		"follow_up_date":     record.FollowUpDate,
		"duration_seconds":   record.DurationSeconds,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal consultation: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/consultations", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build consultation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to submit consultation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("consultation submission returned status %d", resp.StatusCode)
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Load configuration from the environment
	userID, err := uuid.Parse(env.MustGetString("AGENT_USER_ID"))
	if err != nil {
		log.Fatalf("AGENT_USER_ID is not a valid UUID: %v", err)
	}
	localUser := domain.Participant{
		ID:          userID,
		DisplayName: env.GetString("AGENT_DISPLAY_NAME", "Call Agent"),
		Role:        domain.Role(env.GetString("AGENT_ROLE", string(domain.RolePatient))),
	}
	if !localUser.Role.Valid() {
		log.Fatalf("AGENT_ROLE %q is not a valid role", localUser.Role)
	}

	authToken := env.MustGetString("AGENT_AUTH_TOKEN")
	signalURL := env.GetString("SIGNAL_URL", "ws://localhost:8083/ws/signal")
	apiURL := strings.TrimRight(env.GetString("API_URL", "http://localhost:8083"), "/")
	autoAnswer := env.GetBool("AGENT_AUTO_ANSWER", true)

	if err := logger.Init(&logger.Config{
		Level:  env.GetString("LOG_LEVEL", "info"),
		Format: env.GetString("LOG_FORMAT", "text"),
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// 2. Connect the signaling transport
	transport := signaling.NewWSTransport(signaling.DefaultWSConfig(signalURL, authToken))
	if err := transport.Initialize(ctx, localUser.ID); err != nil {
		log.Fatalf("Failed to connect to signaling hub at %s: %v", signalURL, err)
	}
	defer transport.Disconnect()
	log.Printf("✅ Connected to signaling hub as %s (%s)", localUser.DisplayName, localUser.Role)

	// 3. Set up the call machine with pion-backed media
	var stunServers []string
	if raw := env.GetString("STUN_SERVERS", ""); raw != "" {
		stunServers = strings.Split(raw, ",")
	}

	machine := call.NewMachine(call.Config{
		LocalUser:   localUser,
		Transport:   transport,
		Devices:     call.NewPionDevices(),
		Peers:       call.NewPionFactory(stunServers),
		Toasts:      logToasts{},
		RingTimeout: constants.DefaultRingTimeout,
	})

	// 4. Wire the UI surface and notification center to the machine
	surface := callview.NewSurface()
	machine.OnSession(surface.ObserveSession)
	transport.OnStateChange(surface.ObserveConnState)

	machine.OnSession(func(s domain.CallSession) {
		logger.Info("Session transition",
			zap.String("status", string(s.Status)),
			zap.String("direction", string(s.Direction)),
			zap.String("error_reason", s.ErrorReason))

		if autoAnswer && s.Status == domain.CallStatusRinging && s.IsIncoming() {
			if err := machine.AnswerCall(); err != nil {
				logger.Warn("Auto-answer failed", zap.Error(err))
			}
		}
	})

	machine.Start()
	defer machine.Stop()

	// 5. End-call goes through the consultation gate; clinicians file a
	// minimal record through the REST API
	var gate *consult.Gate
	if localUser.Role == domain.RoleClinician {
		sink := &consultationAPISink{
			baseURL: apiURL,
			token:   authToken,
			client:  &http.Client{Timeout: constants.DefaultTimeout},
		}
		gate = consult.NewGate(localUser, machine, surface, sink)
	} else {
		gate = consult.NewGate(localUser, machine, nil, nil)
	}

	// 6. Place the outgoing test call when a peer is configured
	if peerRaw := env.GetString("CALL_PEER_ID", ""); peerRaw != "" {
		peerID, err := uuid.Parse(peerRaw)
		if err != nil {
			log.Fatalf("CALL_PEER_ID is not a valid UUID: %v", err)
		}
		peer := domain.Participant{
			ID:          peerID,
			DisplayName: env.GetString("CALL_PEER_NAME", "Peer"),
			Role:        domain.RolePatient,
		}
		log.Printf("📞 Calling %s (%s)", peer.DisplayName, peer.ID)
		if err := machine.InitiateCall(ctx, peer, nil); err != nil {
			log.Printf("Call failed: %v", err)
		}
	}

	// 7. Drive the per-second duration counter until shutdown
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			surface.Tick()
		case <-ctx.Done():
			log.Println("Shutting down call agent...")
			session := machine.Session()
			if session.Status != domain.CallStatusIdle {
				if deferred, err := gate.RequestEnd(); err != nil {
					logger.Warn("Failed to end call on shutdown", zap.Error(err))
				} else if deferred {
					// No operator to fill the form on shutdown; abandon it.
					if err := gate.Cancel(); err != nil {
						logger.Warn("Failed to cancel pending consultation", zap.Error(err))
					}
				}
			}
			log.Println("Call agent exited")
			os.Exit(0)
		}
	}
}
