package kannel

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

// Handle processes one inbound webhook request from the gateway. It accepts
// GET and POST; parameters come from the query string or the form body.
//
// Requests always carry `timestamp` (epoch seconds). A truthy `status` makes
// the request a delivery report for outgoing message `id`; otherwise it is an
// inbound message with `sender` and `text`.
//
// Malformed requests get a 406 with a plain-text diagnostic and touch no
// state. Internal failures (including handler defects raised while routing)
// are returned to the server layer, which logs them and answers 500; this is
// the outermost recovery point.
func (t *Transport) Handle(c echo.Context) error {
	ctx := c.Request().Context()

	raw := param(c, "timestamp")
	if raw == "" {
		return c.String(http.StatusNotAcceptable, "missing required parameter: timestamp")
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return c.String(http.StatusNotAcceptable, "malformed parameter: timestamp")
	}
	at := time.Unix(int64(secs), 0).UTC()

	status := 0
	if raw := param(c, "status"); raw != "" {
		status, err = strconv.Atoi(raw)
		if err != nil {
			return c.String(http.StatusNotAcceptable, "malformed parameter: status")
		}
	}

	if status != 0 {
		id, err := strconv.ParseInt(param(c, "id"), 10, 64)
		if err != nil {
			return c.String(http.StatusNotAcceptable, "missing or malformed parameter: id")
		}
		delivered := status == statusDelivered
		if err := t.messages.ConfirmDelivery(ctx, id, status, at, delivered); err != nil {
			// An unknown or unsent id points at a gateway mismatch; never
			// swallow it.
			return fmt.Errorf("confirm delivery %d (status %d): %w", id, status, err)
		}
		return c.NoContent(http.StatusOK)
	}

	sender := param(c, "sender")
	text := param(c, "text")
	if sender == "" || text == "" {
		return c.String(http.StatusNotAcceptable, "missing required parameters: sender, text")
	}

	if _, err := t.Incoming(ctx, sender, text, at); err != nil {
		return fmt.Errorf("incoming from %q (text %q): %w", sender, text, err)
	}
	return c.NoContent(http.StatusOK)
}

// param reads a request parameter from the query string or the form body.
func param(c echo.Context, name string) string {
	if v := c.QueryParam(name); v != "" {
		return v
	}
	return c.FormValue(name)
}
