package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/lojasmm/papo/internal/ai"
)

type CurrentTime struct {
	now func() time.Time
}

func NewCurrentTime() *CurrentTime { return &CurrentTime{now: time.Now} }

func (t *CurrentTime) Name() string { return "get_current_time" }
func (t *CurrentTime) Description() string {
	return "Returns the current date and time, optionally in a given IANA time zone"
}
func (t *CurrentTime) Parameters() *ai.ParamSchema {
	return &ai.ParamSchema{
		Type: "object",
		Properties: map[string]*ai.ParamSchema{
			"timezone": {Type: "string", Description: "IANA time zone, e.g. America/Sao_Paulo. Defaults to the server zone."},
			"unix":     {Type: "boolean", Description: "Also return the Unix timestamp"},
		},
	}
}

func (t *CurrentTime) Execute(_ context.Context, args map[string]any) (map[string]any, error) {
	now := t.now()
	if tz := stringArg(args, "timezone"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("unknown time zone %q: %w", tz, err)
		}
		now = now.In(loc)
	}

	result := map[string]any{
		"time":     now.Format(time.RFC3339),
		"weekday":  now.Weekday().String(),
		"timezone": now.Location().String(),
	}
	if boolArg(args, "unix") {
		result["unix"] = now.Unix()
	}
	return result, nil
}

var _ ai.Tool = (*CurrentTime)(nil)
