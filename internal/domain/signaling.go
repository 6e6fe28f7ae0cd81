package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SignalType enumerates the seven signaling message types: four call-control
// messages plus the three WebRTC negotiation primitives.
type SignalType string

const (
	SignalCallInitiate SignalType = "call-initiate"
	SignalCallAnswer   SignalType = "call-answer"
	SignalCallReject   SignalType = "call-reject"
	SignalCallEnd      SignalType = "call-end"
	SignalOffer        SignalType = "offer"
	SignalAnswer       SignalType = "answer"
	SignalICECandidate SignalType = "ice-candidate"
)

// Valid reports whether t is a known signal type.
func (t SignalType) Valid() bool {
	switch t {
	case SignalCallInitiate, SignalCallAnswer, SignalCallReject, SignalCallEnd,
		SignalOffer, SignalAnswer, SignalICECandidate:
		return true
	}
	return false
}

// SignalMessage is the point-to-point signaling envelope. Delivery is
// at-most-once per send; the only ordering callers may assume is that an
// offer precedes its answer precedes its ICE candidates, enforced locally
// by the sender.
type SignalMessage struct {
	Type    SignalType      `json:"type"`
	From    uuid.UUID       `json:"from"`
	To      uuid.UUID       `json:"to"`
	Payload json.RawMessage `json:"payload,omitempty"`
	SentAt  time.Time       `json:"sent_at"`
}

// CallInitiatePayload rides on a call-initiate message so the callee can
// render the caller before any negotiation happens.
type CallInitiatePayload struct {
	Caller        Participant `json:"caller"`
	AppointmentID *uuid.UUID  `json:"appointment_id,omitempty"`
}

// CallRejectPayload optionally carries a rejection reason.
type CallRejectPayload struct {
	Reason string `json:"reason,omitempty"`
}

// SDPPayload carries an offer or answer session description.
type SDPPayload struct {
	SDP string `json:"sdp"`
}

// ICECandidatePayload carries one ICE candidate.
type ICECandidatePayload struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdp_mid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdp_mline_index,omitempty"`
}

// NewSignalMessage builds an envelope with a marshalled payload. A nil
// payload produces an envelope with no body (call-answer, call-end).
func NewSignalMessage(t SignalType, from, to uuid.UUID, payload any) (*SignalMessage, error) {
	msg := &SignalMessage{
		Type:   t,
		From:   from,
		To:     to,
		SentAt: time.Now(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Payload = raw
	}
	return msg, nil
}

// DecodePayload unmarshals the envelope payload into dst.
func (m *SignalMessage) DecodePayload(dst any) error {
	return json.Unmarshal(m.Payload, dst)
}
