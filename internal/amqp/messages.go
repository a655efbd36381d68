package amqp

import (
	"encoding/json"
	"time"

	"aadash/internal/core"
)

// EventConsentGranted is the routing type carried by ConsentGrantedMessage.
const EventConsentGranted = "consent.granted"

// ConsentGrantedMessage announces a newly active consent. The handle is the
// only reference consumers need to look the consent up in the audit log.
type ConsentGrantedMessage struct {
	Event     string    `json:"event"`
	Handle    string    `json:"consentHandle"`
	UserID    string    `json:"userId"`
	Status    string    `json:"status"`
	Mock      bool      `json:"mock"`
	Timestamp time.Time `json:"timestamp"`
}

func NewConsentGrantedMessage(c core.Consent) *ConsentGrantedMessage {
	return &ConsentGrantedMessage{
		Event:     EventConsentGranted,
		Handle:    c.Handle,
		UserID:    c.UserID,
		Status:    c.Status.String(),
		Mock:      c.Mock,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ConsentGrantedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ConsentGrantedMessageFromJSON decodes a message published by PublishConsentGranted.
func ConsentGrantedMessageFromJSON(data []byte) (*ConsentGrantedMessage, error) {
	var msg ConsentGrantedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
