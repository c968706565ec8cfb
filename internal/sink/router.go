package sink

import (
	"context"
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	"github.com/orchid-dev/orchid/internal/errors"
)

// route is one compiled pattern-to-sink binding.
type route struct {
	pattern string
	g       glob.Glob
	sink    Sink
}

// Router fans one message out to every sink whose pattern matches the
// message's task type. Patterns are glob syntax; "*" routes everything.
type Router struct {
	routes []route
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{}
}

// Route binds a task-type pattern to a sink. Patterns are compiled
// fail-fast at wiring time.
func (r *Router) Route(pattern string, sink Sink) error {
	g, err := glob.Compile(pattern)
	if err != nil {
		return errors.Wrapf(err, "compile sink route %q", pattern)
	}
	r.routes = append(r.routes, route{pattern: pattern, g: g, sink: sink})
	return nil
}

func (r *Router) Name() string {
	names := make([]string, 0, len(r.routes))
	for _, rt := range r.routes {
		names = append(names, fmt.Sprintf("%s->%s", rt.pattern, rt.sink.Name()))
	}
	return "router[" + strings.Join(names, ",") + "]"
}

// Deliver sends the message to every matching sink. All matches are
// attempted; the errors, if any, are joined.
func (r *Router) Deliver(ctx context.Context, msg Message) error {
	var errs []error
	for _, rt := range r.routes {
		if !rt.g.Match(string(msg.Type)) {
			continue
		}
		if err := rt.sink.Deliver(ctx, msg); err != nil {
			errs = append(errs, errors.Wrapf(err, "sink %s", rt.sink.Name()))
		}
	}
	return errors.Join(errs...)
}
