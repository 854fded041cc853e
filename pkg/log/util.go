package log

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// badKey names a value that arrived without a key.
const badKey = "!BADKEY"

// toFields reads the variadic arguments of the logging helpers as key/value
// pairs. A bare error or zap.Field may stand in place of a pair.
func toFields(args ...any) []zap.Field {
	if len(args) == 0 {
		return nil
	}

	fields := make([]zap.Field, 0, len(args)/2+1)
	for len(args) > 0 {
		switch v := args[0].(type) {
		case zap.Field:
			fields = append(fields, v)
			args = args[1:]
			continue
		case error:
			fields = append(fields, zap.Error(v))
			args = args[1:]
			continue
		}

		if len(args) == 1 {
			fields = append(fields, zap.Any(badKey, args[0]))
			break
		}
		fields = append(fields, pair(args[0], args[1]))
		args = args[2:]
	}
	return fields
}

func pair(key, val any) zap.Field {
	k, ok := key.(string)
	if !ok {
		k = fmt.Sprint(key)
	}

	switch v := val.(type) {
	case error:
		return zap.NamedError(k, v)
	case time.Duration, time.Time:
		return zap.Any(k, v)
	case fmt.Stringer:
		return zap.Stringer(k, v)
	}
	return zap.Any(k, val)
}
