// ports.go implements the index-addressed port collection of a session.

package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/xaionaro-go/avomx/engine"
	"github.com/xaionaro-go/avomx/logger"
	"github.com/xaionaro-go/xsync"
)

// MaxPorts bounds the port indexes a session accepts.
const MaxPorts = 64

// Port returns the port with the given index, or nil if it is not configured.
func (s *Session) Port(ctx context.Context, index uint32) *Port {
	return xsync.DoA1R1(xsync.WithNoLogging(ctx, true), &s.portsLocker, s.portLocked, index)
}

func (s *Session) portLocked(index uint32) *Port {
	if uint64(index) >= uint64(len(s.ports)) {
		return nil
	}
	return s.ports[index]
}

func (s *Session) portOrError(ctx context.Context, index uint32) (*Port, error) {
	port := s.Port(ctx, index)
	if port == nil {
		return nil, ErrNoPort{Index: index}
	}
	return port, nil
}

// RequestBuffer is Port.Request addressed by the port index.
func (s *Session) RequestBuffer(ctx context.Context, portIndex uint32) (*engine.Buffer, error) {
	port, err := s.portOrError(ctx, portIndex)
	if err != nil {
		return nil, err
	}
	return port.Request(ctx)
}

// ReleaseBuffer is Port.ReleaseBuffer addressed by the port index.
func (s *Session) ReleaseBuffer(ctx context.Context, portIndex uint32, buf *engine.Buffer) error {
	port, err := s.portOrError(ctx, portIndex)
	if err != nil {
		return err
	}
	return port.ReleaseBuffer(ctx, buf)
}

// Ports returns the configured ports ordered by index.
func (s *Session) Ports(ctx context.Context) []*Port {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &s.portsLocker, func() []*Port {
		result := make([]*Port, 0, len(s.ports))
		for _, port := range s.ports {
			if port != nil {
				result = append(result, port)
			}
		}
		return result
	})
}

// SetupPort creates the port on first use of the index and (re)configures it.
func (s *Session) SetupPort(
	ctx context.Context,
	def engine.PortDefinition,
) (_ret *Port, _err error) {
	logger.Debugf(ctx, "SetupPort(ctx, %#+v)", def)
	defer func() { logger.Debugf(ctx, "/SetupPort(ctx, %#+v): %v", def, _err) }()
	if def.Index >= MaxPorts {
		return nil, ErrPortIndex{Index: def.Index}
	}
	port := xsync.DoR1(ctx, &s.portsLocker, func() *Port {
		if port := s.portLocked(def.Index); port != nil {
			return port
		}
		port := newPort(s, def.Index)
		if uint64(def.Index) >= uint64(len(s.ports)) {
			ports := make([]*Port, def.Index+1)
			copy(ports, s.ports)
			s.ports = ports
		}
		s.ports[def.Index] = port
		return port
	})
	if err := port.Configure(ctx, def); err != nil {
		return nil, err
	}
	return port, nil
}

// SetupPortFromEngine queries the port definition from the engine and
// calls SetupPort with it. The modify callback (if not nil) may adjust the
// definition; the adjusted definition is sent back to the engine.
func (s *Session) SetupPortFromEngine(
	ctx context.Context,
	index uint32,
	modify func(*engine.PortDefinition),
) (*Port, error) {
	def, err := s.handle.GetPortDefinition(ctx, index)
	if err != nil {
		return nil, fmt.Errorf("unable to get the definition of port #%d: %w", index, err)
	}
	if modify != nil {
		modify(&def)
		if err := s.handle.SetPortDefinition(ctx, def); err != nil {
			return nil, fmt.Errorf("unable to set the definition of port #%d: %w", index, err)
		}
	}
	return s.SetupPort(ctx, def)
}

func (s *Session) forEachPort(
	ctx context.Context,
	fn func(*Port, context.Context) error,
) error {
	var result []error
	for _, port := range s.Ports(ctx) {
		if err := fn(port, ctx); err != nil {
			result = append(result, fmt.Errorf("port #%d: %w", port.Index(), err))
		}
	}
	return errors.Join(result...)
}

func (s *Session) destroyPorts(ctx context.Context) {
	ports := xsync.DoR1(ctx, &s.portsLocker, func() []*Port {
		ports := s.ports
		s.ports = nil
		return ports
	})
	for _, port := range ports {
		if port != nil {
			port.Finish(ctx)
		}
	}
}
