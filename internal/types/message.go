package types

import "encoding/json"

// MessageType names a frame on the extension message bus
type MessageType string

// Request types answered by the coordinator
const (
	MsgGetAuthStatus   MessageType = "GET_AUTH_STATUS"
	MsgCheckAuth       MessageType = "CHECK_AUTH"
	MsgGetMode         MessageType = "GET_MODE"
	MsgGetCurrentMode  MessageType = "GET_CURRENT_MODE"
	MsgGetRecentLinks  MessageType = "GET_RECENT_LINKS"
	MsgSetMode         MessageType = "SET_MODE"
	MsgSyncMode        MessageType = "SYNC_MODE_WITH_DATABASE"
	MsgLogout          MessageType = "LOGOUT"
	MsgCloseTab        MessageType = "CLOSE_CURRENT_TAB"
	MsgCheckShouldBlur MessageType = "CHECK_SHOULD_BLUR"
)

// Push types sent by the coordinator
const (
	MsgBlurPage     MessageType = "BLUR_PAGE"
	MsgRemoveBlur   MessageType = "REMOVE_BLUR"
	MsgIsBlurred    MessageType = "IS_PAGE_BLURRED"
	MsgStateUpdated MessageType = "BACKGROUND_STATE_UPDATED"
	MsgInitialized  MessageType = "BACKGROUND_INITIALIZED"
	MsgNotify       MessageType = "NOTIFY"
	MsgTabClose     MessageType = "CLOSE_TAB"
	MsgResponse     MessageType = "RESPONSE"
)

// Tab lifecycle events emitted by the browser bridge
const (
	MsgTabActivated MessageType = "TAB_ACTIVATED"
	MsgTabUpdated   MessageType = "TAB_UPDATED"
)

// Frame is the wire format for one bus message. ID correlates a request
// with its response; push frames carry no ID.
type Frame struct {
	ID      string          `json:"id,omitempty"`
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewFrame builds a frame with a marshaled payload. Marshal failures fall
// back to an empty payload; every payload type here is a plain struct or map.
func NewFrame(id string, t MessageType, payload interface{}) Frame {
	f := Frame{ID: id, Type: t}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			f.Payload = data
		}
	}
	return f
}

// Unmarshal decodes the frame payload into v.
func (f Frame) Unmarshal(v interface{}) error {
	return json.Unmarshal(f.Payload, v)
}

// SetModeRequest is the SET_MODE payload. Submode and lyrics keys match
// the account store's column naming.
type SetModeRequest struct {
	Mode    Mode     `json:"mode"`
	Submode *Submode `json:"study_submode_set,omitempty"`
	Lyrics  *bool    `json:"lyrics_status,omitempty"`
}

// TabEvent is the payload of TAB_ACTIVATED and TAB_UPDATED frames
type TabEvent struct {
	Tab    TabRef `json:"tab"`
	Status string `json:"status,omitempty"`
}

// BlurRequest is the BLUR_PAGE payload
type BlurRequest struct {
	Mode Mode `json:"mode"`
}

// Notification is the NOTIFY payload shown by the browser bridge
type Notification struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}
