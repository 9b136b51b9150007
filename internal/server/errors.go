package server

import "errors"

var (
	ErrServer   = errors.New("server error")
	ErrProtocol = errors.New("malformed message")
	ErrRemote   = errors.New("server rejected request")
)
