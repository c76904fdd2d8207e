package whatsapp

import (
	"encoding/json"
	"log"
	"net/http"
)

// Inbound is one user message extracted from a webhook notification.
// MediaIDs hold image attachments still to be resolved with Client.MediaURL.
type Inbound struct {
	From      string
	MessageID string
	Text      string
	MediaIDs  []string
}

// MessageHandler receives one sender's messages from a notification, in order.
type MessageHandler func(from string, msgs []Inbound)

type WebhookHandler struct {
	verifyToken string
	onMessage   MessageHandler
}

func NewWebhookHandler(verifyToken string, onMessage MessageHandler) *WebhookHandler {
	return &WebhookHandler{
		verifyToken: verifyToken,
		onMessage:   onMessage,
	}
}

// HandleVerify handles the GET webhook verification from Meta.
// Reference: https://developers.facebook.com/docs/whatsapp/cloud-api/get-started#webhook-verification
func (h *WebhookHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && token == h.verifyToken {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(challenge))
		return
	}

	http.Error(w, "Forbidden", http.StatusForbidden)
}

// HandleIncoming processes incoming webhook POST notifications.
// onMessage must not block: Meta expects a quick 200 OK.
// Reference: https://developers.facebook.com/docs/whatsapp/cloud-api/webhooks/components
func (h *WebhookHandler) HandleIncoming(w http.ResponseWriter, r *http.Request) {
	var payload WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		log.Printf("webhook: failed to decode payload: %v", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	var senders []string
	bySender := make(map[string][]Inbound)
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				in, ok := toInbound(msg)
				if !ok {
					continue
				}
				if _, seen := bySender[in.From]; !seen {
					senders = append(senders, in.From)
				}
				bySender[in.From] = append(bySender[in.From], in)
			}
		}
	}
	for _, from := range senders {
		h.onMessage(from, bySender[from])
	}

	w.WriteHeader(http.StatusOK)
}

func toInbound(msg Message) (Inbound, bool) {
	in := Inbound{From: msg.From, MessageID: msg.ID}
	switch msg.Type {
	case "text":
		if msg.Text == nil {
			return in, false
		}
		in.Text = msg.Text.Body
	case "image":
		if msg.Image == nil || msg.Image.ID == "" {
			return in, false
		}
		in.Text = msg.Image.Caption
		in.MediaIDs = []string{msg.Image.ID}
	case "interactive":
		if msg.Interactive == nil {
			return in, false
		}
		switch {
		case msg.Interactive.ButtonReply != nil:
			in.Text = msg.Interactive.ButtonReply.Title
		case msg.Interactive.ListReply != nil:
			in.Text = msg.Interactive.ListReply.Title
		default:
			return in, false
		}
	default:
		log.Printf("webhook: ignoring %s message from %s", msg.Type, msg.From)
		return in, false
	}
	return in, true
}
