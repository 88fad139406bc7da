package api

import "log/slog"

func logAttr(err error) slog.Attr {
	return slog.Any("error", err)
}
