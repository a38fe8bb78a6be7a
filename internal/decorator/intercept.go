package decorator

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/rankreg/internal/handle"
	"github.com/zjrosen/rankreg/internal/log"
	"github.com/zjrosen/rankreg/internal/tracing"
)

// Interceptor is around-advice for one method call. It must call next to
// proceed, or return without calling it to short-circuit.
type Interceptor func(ctx context.Context, method string, next func(context.Context) error) error

// Invoke runs call for method through the matching interceptors.
type Invoke func(ctx context.Context, method string, call func(context.Context) error) error

// Proxy builds a T that routes its methods through invoke. Each method of
// the returned value calls invoke with its own name.
type Proxy[T any] func(instance T, invoke Invoke) T

// Matcher selects the instances and methods that are intercepted. A nil
// field matches everything.
type Matcher[T any] struct {
	Type   func(instance T) bool
	Method func(name string) bool
}

// Methods matches the listed method names.
func Methods(names ...string) func(string) bool {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return func(name string) bool {
		_, ok := set[name]
		return ok
	}
}

// Intercepting returns a decorator whose Get wraps matching instances with
// proxy, routing matched methods through interceptors. The first listed
// interceptor is outermost.
func Intercepting[T any](matcher Matcher[T], proxy Proxy[T], interceptors ...Interceptor) ImportDecorator[T] {
	invoke := func(ctx context.Context, method string, call func(context.Context) error) error {
		if matcher.Method != nil && !matcher.Method(method) {
			return call(ctx)
		}
		next := call
		for i := len(interceptors) - 1; i >= 0; i-- {
			ic, inner := interceptors[i], next
			next = func(ctx context.Context) error {
				return ic(ctx, method, inner)
			}
		}
		return next(ctx)
	}

	return Func[T](func(imp handle.Import[T]) handle.Import[T] {
		return &interceptedImport[T]{wrapped: wrapped[T]{inner: imp}, matcher: matcher, proxy: proxy, invoke: invoke}
	})
}

type interceptedImport[T any] struct {
	wrapped[T]
	matcher Matcher[T]
	proxy   Proxy[T]
	invoke  Invoke
}

func (i *interceptedImport[T]) Get() (T, error) {
	v, err := i.inner.Get()
	if err != nil {
		return v, err
	}
	if i.matcher.Type != nil && !i.matcher.Type(v) {
		return v, nil
	}
	return i.proxy(v, i.invoke), nil
}

func (i *interceptedImport[T]) Unget() {
	i.inner.Unget()
}

// Logging logs every intercepted call with its duration and error.
func Logging() Interceptor {
	return func(ctx context.Context, method string, next func(context.Context) error) error {
		start := time.Now()
		err := next(ctx)
		if err != nil {
			log.Warn(log.CatDecorator, "call failed", "method", method, "duration", time.Since(start), "error", err)
			return err
		}
		log.Debug(log.CatDecorator, "call", "method", method, "duration", time.Since(start))
		return nil
	}
}

// Tracing opens a span per intercepted call.
func Tracing(tracer trace.Tracer) Interceptor {
	return func(ctx context.Context, method string, next func(context.Context) error) error {
		ctx, span := tracer.Start(ctx, "call."+method,
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(attribute.String(tracing.AttrMethod, method)),
		)
		defer span.End()

		if err := next(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		span.SetStatus(codes.Ok, "")
		return nil
	}
}

// Traced returns a decorator that records a span for every acquisition.
func Traced[T any](tracer trace.Tracer) ImportDecorator[T] {
	return Func[T](func(imp handle.Import[T]) handle.Import[T] {
		return &tracedImport[T]{wrapped: wrapped[T]{inner: imp}, tracer: tracer}
	})
}

type tracedImport[T any] struct {
	wrapped[T]
	tracer trace.Tracer
}

func (t *tracedImport[T]) Get() (T, error) {
	_, span := t.tracer.Start(context.Background(), tracing.SpanAcquire)
	defer span.End()

	if id, ok := t.inner.(interface{ ID() handle.Identity }); ok {
		span.SetAttributes(attribute.String(tracing.AttrHandleID, id.ID().String()))
	}
	span.SetAttributes(attribute.Int(tracing.AttrHandleRank, handle.RankOf(t.inner.Attributes())))

	v, err := t.inner.Get()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return v, err
	}
	span.SetAttributes(attribute.String(tracing.AttrInstance, fmt.Sprintf("%T", v)))
	return v, nil
}

func (t *tracedImport[T]) Unget() {
	t.inner.Unget()
}
