package overlay

import "errors"

var (
	// ErrConfiguration marks unusable seed or runtime configuration.
	ErrConfiguration = errors.New("overlay: bad configuration")
	// ErrUnknownPeer marks operations on identities absent from the directory.
	ErrUnknownPeer = errors.New("overlay: unknown peer")
	// ErrMalformedMessage marks inbound entries missing required fields.
	ErrMalformedMessage = errors.New("overlay: malformed message")
	// ErrTransport marks failed connection attempts.
	ErrTransport = errors.New("overlay: transport failure")
)

func IsUnknownPeer(err error) bool { return errors.Is(err, ErrUnknownPeer) }

func IsMalformed(err error) bool { return errors.Is(err, ErrMalformedMessage) }
