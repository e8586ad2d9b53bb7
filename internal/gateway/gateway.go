// Package gateway picks a completion provider for each turn and hides
// upstream failures behind a single opaque error.
package gateway

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/wuwenbin0122/marefa.ai/internal/models"
)

var (
	ErrNoProvider       = errors.New("gateway: no completion provider available")
	ErrGenerationFailed = errors.New("gateway: failed to generate AI response")
)

type Gateway struct {
	primary   Provider
	alternate Provider
	logger    *zap.Logger
}

// New requires at least one provider. A nil provider means unconfigured.
func New(primary, alternate Provider, logger *zap.Logger) (*Gateway, error) {
	if isNil(primary) {
		primary = nil
	}
	if isNil(alternate) {
		alternate = nil
	}
	if primary == nil && alternate == nil {
		return nil, ErrNoProvider
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Gateway{primary: primary, alternate: alternate, logger: logger.Named("gateway")}, nil
}

// Select returns the alternate when it is requested and configured, otherwise
// the primary.
func (g *Gateway) Select(preferAlternate bool) (Provider, error) {
	if preferAlternate && g.alternate != nil {
		return g.alternate, nil
	}
	if g.primary != nil {
		return g.primary, nil
	}
	return nil, ErrNoProvider
}

func (g *Gateway) Complete(ctx context.Context, messages []models.ContextMessage, preferAlternate bool) (string, error) {
	provider, err := g.Select(preferAlternate)
	if err != nil {
		return "", err
	}

	reply, err := provider.Complete(ctx, messages)
	if err != nil {
		fields := []zap.Field{zap.String("provider", provider.Name()), zap.Error(err)}
		var upstream *UpstreamError
		if errors.As(err, &upstream) {
			fields = append(fields, zap.Int("status", upstream.StatusCode))
		}
		g.logger.Error("completion request failed", fields...)
		return "", ErrGenerationFailed
	}

	return reply, nil
}

// isNil catches typed nil pointers such as a (*OpenAICompatible)(nil).
func isNil(p Provider) bool {
	if p == nil {
		return true
	}
	if o, ok := p.(*OpenAICompatible); ok && o == nil {
		return true
	}
	return false
}
