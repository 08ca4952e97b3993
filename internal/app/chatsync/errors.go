package chatsync

import "errors"

var (
	ErrClosed           = errors.New("chatsync: conversation handle is closed")
	ErrStreamLost       = errors.New("chatsync: live insert stream dropped")
	ErrPresenceLost     = errors.New("chatsync: presence channel dropped")
	ErrNoActivitySource = errors.New("chatsync: no activity reader configured")
)
