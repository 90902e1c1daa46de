package whatsapp

// Webhook payload structures (inbound, Cloud API "messages" field).

type WebhookPayload struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

type WebhookEntry struct {
	ID      string          `json:"id"`
	Changes []WebhookChange `json:"changes"`
}

type WebhookChange struct {
	Value WebhookValue `json:"value"`
	Field string       `json:"field"`
}

type WebhookValue struct {
	MessagingProduct string            `json:"messaging_product"`
	Metadata         Metadata          `json:"metadata"`
	Contacts         []WebhookContact  `json:"contacts,omitempty"`
	Messages         []IncomingMessage `json:"messages,omitempty"`
}

type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type WebhookContact struct {
	Profile Profile `json:"profile"`
	WaID    string  `json:"wa_id"`
}

type Profile struct {
	Name string `json:"name"`
}

type IncomingMessage struct {
	From        string               `json:"from"`
	ID          string               `json:"id"`
	Timestamp   string               `json:"timestamp"`
	Type        string               `json:"type"`
	Text        *IncomingText        `json:"text,omitempty"`
	Interactive *IncomingInteractive `json:"interactive,omitempty"`
	Audio       *IncomingMedia       `json:"audio,omitempty"`
}

type IncomingText struct {
	Body string `json:"body"`
}

type IncomingInteractive struct {
	Type        string            `json:"type"`
	ButtonReply *InteractiveReply `json:"button_reply,omitempty"`
	ListReply   *InteractiveReply `json:"list_reply,omitempty"`
}

type InteractiveReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type IncomingMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Sha256   string `json:"sha256"`
	Voice    bool   `json:"voice,omitempty"`
}

// Send message structures (outbound, POST /{phone-number-id}/messages).

type Message struct {
	MessagingProduct string       `json:"messaging_product"`
	RecipientType    string       `json:"recipient_type"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             *Text        `json:"text,omitempty"`
	Interactive      *Interactive `json:"interactive,omitempty"`
	Image            *Media       `json:"image,omitempty"`
	Audio            *Media       `json:"audio,omitempty"`
}

type Text struct {
	PreviewURL bool   `json:"preview_url,omitempty"`
	Body       string `json:"body"`
}

type Interactive struct {
	Type   string            `json:"type"`
	Body   InteractiveBody   `json:"body"`
	Action InteractiveAction `json:"action"`
}

type InteractiveBody struct {
	Text string `json:"text"`
}

type InteractiveAction struct {
	Buttons []Button `json:"buttons"`
}

type Button struct {
	Type  string      `json:"type"`
	Reply ButtonReply `json:"reply"`
}

type ButtonReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type Media struct {
	Link string `json:"link"`
}

// NewTextMessage builds a plain text message with URL previews enabled.
func NewTextMessage(to, body string) *Message {
	return &Message{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             &Text{PreviewURL: true, Body: body},
	}
}

// NewButtonMessage builds an interactive reply-button message.
func NewButtonMessage(to, prompt string, buttons []Button) *Message {
	return &Message{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "interactive",
		Interactive: &Interactive{
			Type:   "button",
			Body:   InteractiveBody{Text: prompt},
			Action: InteractiveAction{Buttons: buttons},
		},
	}
}

// NewImageMessage builds an image message referencing a URL.
func NewImageMessage(to, link string) *Message {
	return &Message{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "image",
		Image:            &Media{Link: link},
	}
}

// NewAudioMessage builds an audio message referencing a URL.
func NewAudioMessage(to, link string) *Message {
	return &Message{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "audio",
		Audio:            &Media{Link: link},
	}
}

// Send response structures.

type SendResponse struct {
	MessagingProduct string            `json:"messaging_product"`
	Contacts         []ContactResult   `json:"contacts"`
	Messages         []MessageResult   `json:"messages"`
	Error            *APIErrorResponse `json:"error,omitempty"`
}

type ContactResult struct {
	Input string `json:"input"`
	WaID  string `json:"wa_id"`
}

type MessageResult struct {
	ID string `json:"id"`
}

type APIErrorResponse struct {
	Message      string `json:"message"`
	Type         string `json:"type"`
	Code         int    `json:"code"`
	ErrorSubcode int    `json:"error_subcode"`
	FBTraceID    string `json:"fbtrace_id"`
}

// MediaInfo is the response of GET /{media-id}, used to resolve a
// downloadable URL for inbound voice notes.
type MediaInfo struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	FileSize int64  `json:"file_size"`
	ID       string `json:"id"`
}
