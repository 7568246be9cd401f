package api

import (
	"encoding/json"
	"io"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/vigil/internal/errors"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads the request body into v with numbers kept as
// json.Number. An empty body leaves v untouched.
func decodeJSON(ctx echo.Context, v any) error {
	if !isJSONBody(ctx) {
		return errors.NewStd("expected application/json body")
	}
	dec := json.NewDecoder(io.LimitReader(ctx.Request().Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}
