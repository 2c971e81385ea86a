package router

import (
	"fmt"
	"time"

	"github.com/arcbound/turnloop/internal/turn/model"
)

// detectFragmentation flags a burst of short user messages arriving close
// together — a signal the user is typing in fragments rather than one
// complete request. It reports fragmented=true once at least
// cfg.FragmentationMinCount short messages fall within
// cfg.FragmentationWindowMs of the latest user message.
func detectFragmentation(messages []model.Message, cfg Config) (bool, []string) {
	var userMsgs []model.Message
	for _, m := range messages {
		if m.Role == model.RoleUser {
			userMsgs = append(userMsgs, m)
		}
	}
	if len(userMsgs) < cfg.FragmentationMinCount {
		return false, nil
	}

	window := time.Duration(cfg.FragmentationWindowMs) * time.Millisecond
	latest := userMsgs[len(userMsgs)-1].Timestamp

	var signals []string
	short := 0
	for i := len(userMsgs) - 1; i >= 0; i-- {
		m := userMsgs[i]
		if latest.Sub(m.Timestamp) > window {
			break
		}
		if len(m.Content) <= cfg.FragmentationMinChars {
			short++
			signals = append(signals, fmt.Sprintf("short message %q within %s of latest", m.Content, window))
		}
	}

	return short >= cfg.FragmentationMinCount, signals
}
