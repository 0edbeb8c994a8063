// Package mock provides an in-process stt.Provider test double.
package mock

import (
	"context"

	"github.com/auravox/core/pkg/provider/stt"
	"github.com/auravox/core/pkg/types"
)

// Provider is a configurable stt.Provider test double.
type Provider struct {
	Session        *Session
	StartStreamErr error

	StartStreamCalls []stt.StreamConfig
}

var _ stt.Provider = (*Provider)(nil)

func (p *Provider) StartStream(_ context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.StartStreamCalls = append(p.StartStreamCalls, cfg)
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	return p.Session, nil
}

// Session is a configurable stt.SessionHandle test double.
type Session struct {
	PartialsCh chan types.Transcript
	FinalsCh   chan types.Transcript
	SendErr    error

	SentAudio [][]byte
	Closed    bool
}

var _ stt.SessionHandle = (*Session)(nil)

func (s *Session) SendAudio(chunk []byte) error {
	if s.SendErr != nil {
		return s.SendErr
	}
	s.SentAudio = append(s.SentAudio, chunk)
	return nil
}

func (s *Session) Partials() <-chan types.Transcript { return s.PartialsCh }
func (s *Session) Finals() <-chan types.Transcript   { return s.FinalsCh }

func (s *Session) Close() error {
	if s.Closed {
		return nil
	}
	s.Closed = true
	if s.PartialsCh != nil {
		close(s.PartialsCh)
	}
	if s.FinalsCh != nil {
		close(s.FinalsCh)
	}
	return nil
}
