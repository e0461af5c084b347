package telegram

import (
	"time"

	"github.com/gotd/td/tgerr"

	"github.com/vietddude/floodguard/internal/infra/rpc"
)

// Error types that carry a wait in seconds as their argument.
var floodTypes = []string{
	"FLOOD_WAIT",
	"FLOOD_PREMIUM_WAIT",
	"SLOWMODE_WAIT",
}

// Denial sets per operation family.
var (
	sendDenials    = []string{"CHAT_ADMIN_REQUIRED", "PEER_ID_INVALID", "CHANNEL_INVALID", "CHANNEL_PRIVATE"}
	deleteDenials  = []string{"MESSAGE_DELETE_FORBIDDEN"}
	chatDenials    = []string{"PEER_ID_INVALID", "CHANNEL_INVALID", "CHANNEL_PRIVATE"}
	userDenials    = []string{"PEER_ID_INVALID"}
	resolveDenials = []string{"PEER_ID_INVALID", "USERNAME_INVALID", "USERNAME_NOT_OCCUPIED"}
	memberDenials  = []string{"USER_NOT_PARTICIPANT", "CHAT_ADMIN_REQUIRED"}
	stickerDenials = []string{"STICKERSET_INVALID"}
)

// Raised when inline keyboard callback data is rejected.
const buttonDataInvalid = "BUTTON_DATA_INVALID"

// FloodWait reports the wait carried by a flood, premium flood or slow mode
// error.
func FloodWait(err error) (time.Duration, bool) {
	rpcErr, ok := tgerr.As(err)
	if !ok {
		return 0, false
	}
	for _, t := range floodTypes {
		if rpcErr.IsType(t) {
			return time.Duration(rpcErr.Argument) * time.Second, true
		}
	}
	return 0, false
}

// Classifier retries flood waits and denies RPC errors whose type is in
// denials. Everything else falls through to rpc.ClassifyError.
func Classifier(denials ...string) rpc.Classifier {
	return rpc.Chain(func(err error) rpc.Decision {
		if wait, ok := FloodWait(err); ok {
			return rpc.Decision{Action: rpc.ActionRetry, Wait: wait, Reason: "flood_wait"}
		}
		if len(denials) > 0 && tgerr.Is(err, denials...) {
			rpcErr, _ := tgerr.As(err)
			return rpc.Decision{Action: rpc.ActionDeny, Reason: rpcErr.Type}
		}
		return rpc.Decision{Action: rpc.ActionError, Reason: "unclassified"}
	}, rpc.ClassifyError)
}
