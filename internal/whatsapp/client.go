package whatsapp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/lojasmm/papo/internal/bot"
	"github.com/lojasmm/papo/internal/chat"
)

const defaultAPIURL = "https://graph.facebook.com/v21.0"

const base64Scheme = "base64://"

// Cloud API caps images at 5 MB.
const maxMediaSize = 5 << 20

type Client struct {
	phoneNumberID string
	accessToken   string
	apiURL        string
	http          *http.Client
}

func NewClient(phoneNumberID, accessToken string) *Client {
	return &Client{
		phoneNumberID: phoneNumberID,
		accessToken:   accessToken,
		apiURL:        defaultAPIURL,
		http:          &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) SendText(to, body string) error {
	msg := SendMessageRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             &SendText{Body: body},
	}
	return c.send(msg)
}

// SendImage sends an image by public link, or by media ID when link is empty.
func (c *Client) SendImage(to string, img SendImage) error {
	msg := SendMessageRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "image",
		Image:            &img,
	}
	return c.send(msg)
}

// UploadMedia uploads raw image bytes and returns the media ID to send.
func (c *Client) UploadMedia(data []byte, mimeType string) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	w.WriteField("messaging_product", "whatsapp")
	w.WriteField("type", mimeType)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image"`)
	h.Set("Content-Type", mimeType)
	part, err := w.CreatePart(h)
	if err != nil {
		return "", err
	}
	part.Write(data)
	if err := w.Close(); err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/%s/media", c.apiURL, c.phoneNumberID)
	req, err := http.NewRequest(http.MethodPost, url, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var out mediaUploadResponse
	if err := c.do(req, &out); err != nil {
		return "", fmt.Errorf("uploading media: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("uploading media: no id in response")
	}
	return out.ID, nil
}

// MediaURL resolves an inbound media ID into a download URL.
func (c *Client) MediaURL(ctx context.Context, mediaID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/"+mediaID, nil)
	if err != nil {
		return "", err
	}
	var out mediaInfoResponse
	if err := c.do(req, &out); err != nil {
		return "", fmt.Errorf("resolving media %s: %w", mediaID, err)
	}
	return out.URL, nil
}

// DownloadMedia fetches an inbound media object. The URL returned by the
// lookup needs the access token and expires within minutes.
func (c *Client) DownloadMedia(ctx context.Context, mediaID string) ([]byte, error) {
	url, err := c.MediaURL(ctx, mediaID)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading media %s: %w", mediaID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("downloading media %s: status %d: %s", mediaID, resp.StatusCode, respBody)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaSize+1))
	if err != nil {
		return nil, fmt.Errorf("downloading media %s: %w", mediaID, err)
	}
	if len(data) > maxMediaSize {
		return nil, fmt.Errorf("media %s is larger than %d bytes", mediaID, maxMediaSize)
	}
	return data, nil
}

// ImageRefs downloads inbound images and returns them as base64:// references.
// Failed downloads are logged and skipped.
func (c *Client) ImageRefs(ctx context.Context, mediaIDs []string) []string {
	refs := make([]string, 0, len(mediaIDs))
	for _, id := range mediaIDs {
		data, err := c.DownloadMedia(ctx, id)
		if err != nil {
			log.Printf("whatsapp: %v", err)
			continue
		}
		refs = append(refs, base64Scheme+base64.StdEncoding.EncodeToString(data))
	}
	return refs
}

func (c *Client) send(msg SendMessageRequest) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.apiURL, c.phoneNumberID)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("whatsapp API status %d: %s", resp.StatusCode, respBody)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Event converts an inbound message into a turn event. Images are inlined
// because Graph API media URLs are private and short-lived.
func (c *Client) Event(ctx context.Context, in Inbound) bot.Event {
	return bot.Event{
		UserID: in.From,
		Text:   in.Text,
		Images: c.ImageRefs(ctx, in.MediaIDs),
		// Cloud API only delivers direct messages
		Addressed: true,
	}
}

// Replier delivers bot replies to one WhatsApp recipient.
type Replier struct {
	client *Client
	to     string
}

func (c *Client) ReplierFor(to string) *Replier {
	return &Replier{client: c, to: to}
}

// Reply sends the text first, then each image as its own message.
func (r *Replier) Reply(content chat.Content) error {
	if content.Parts == nil {
		return r.client.SendText(r.to, content.Text)
	}

	var texts []string
	var images []string
	for _, p := range content.Parts {
		switch p.Kind {
		case chat.PartText:
			texts = append(texts, p.Value)
		case chat.PartImage:
			images = append(images, p.Value)
		}
	}

	if len(texts) > 0 {
		if err := r.client.SendText(r.to, strings.Join(texts, "\n")); err != nil {
			return err
		}
	}
	for _, ref := range images {
		img, err := r.imageRef(ref)
		if err != nil {
			log.Printf("whatsapp: skipping image for %s: %v", r.to, err)
			continue
		}
		if err := r.client.SendImage(r.to, img); err != nil {
			return err
		}
	}
	return nil
}

func (r *Replier) imageRef(ref string) (SendImage, error) {
	if !strings.HasPrefix(ref, base64Scheme) {
		return SendImage{Link: ref}, nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(ref, base64Scheme))
	if err != nil {
		return SendImage{}, fmt.Errorf("decoding image: %w", err)
	}
	id, err := r.client.UploadMedia(data, http.DetectContentType(data))
	if err != nil {
		return SendImage{}, err
	}
	return SendImage{ID: id}, nil
}
