package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds published by the sync daemon. Subscribers filter on the
// namespace prefix (the part up to and including the first dot).
const (
	KindConnStatus          = "conn.status_changed"
	KindConversationsChange = "state.conversations"
	KindMessagesChange      = "state.messages"
	KindNotificationsChange = "state.notifications"
	KindTypingChange        = "typing.changed"
	KindSendAck             = "message.send_ack"
	KindSendFailed          = "message.send_failed"
	KindNotificationToast   = "notification.toast"
	KindSyncError           = "sync.error"
	KindSignedOut           = "session.signed_out"
	KindSignedIn            = "session.signed_in"
)
