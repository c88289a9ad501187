package observability

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/marketcart/api/internal/domain"
)

const (
	maxRouteLen  = 180
	maxMethodLen = 10
	maxIDLen     = 64
	maxIPLen     = 64
)

// clean strips control characters and caps value at limit runes. Request derived strings go
// through it before they become log fields.
func clean(value string, limit int) string {
	value = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	return string([]rune(value)[:limit])
}

func cleanRoute(route string) string {
	if route == "" {
		return "/"
	}
	return clean(route, maxRouteLen)
}

// ActorFields names the verified caller on a log line. Anonymous callers add nothing.
func ActorFields(actor domain.Actor) []zap.Field {
	if actor.ID == "" {
		return nil
	}
	return []zap.Field{
		zap.String("actor_id", clean(actor.ID, maxIDLen)),
		zap.String("actor_role", string(actor.Role)),
	}
}
