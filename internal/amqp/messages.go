package amqp

import (
	"encoding/json"
	"time"
)

// WalletChangedMessage tells other processes a document was written. It
// carries no data; receivers re-read the document.
type WalletChangedMessage struct {
	Collection string    `json:"collection"`
	ID         string    `json:"id"`
	Origin     string    `json:"origin"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewWalletChangedMessage(collection, id, origin string) *WalletChangedMessage {
	return &WalletChangedMessage{
		Collection: collection,
		ID:         id,
		Origin:     origin,
		Timestamp:  time.Now(),
	}
}

func (m *WalletChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func WalletChangedMessageFromJSON(data []byte) (*WalletChangedMessage, error) {
	var msg WalletChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
