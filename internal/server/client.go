package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
)

// Sends one command to the server at socketPath and decodes the response
// payload into result, which may be nil.
//
// Cancelling ctx closes the connection, which cancels a run in progress on
// the server. An error response is returned as [ErrRemote] carrying the
// server's message.
func Call(ctx context.Context, socketPath string, cmd Command, payload, result any) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrServer, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	data, err := Encode(cmd, payload)
	if err != nil {
		return err
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("%w: %w", ErrServer, err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrServer, err)
	}

	env, err := Decode(line)
	if err != nil {
		return err
	}

	if env.Command == CmdError {
		msg, err := DecodePayload[ErrorResult](env.Payload)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", ErrRemote, msg.Message)
	}
	if env.Command != CmdOK {
		return fmt.Errorf("%w: unexpected response %q", ErrProtocol, env.Command)
	}

	if result != nil && len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, result); err != nil {
			return fmt.Errorf("%w: %w", ErrProtocol, err)
		}
	}
	return nil
}
