package store

import (
	"context"
	"time"

	"github.com/chatmate/chatmate/internal/access"
	"github.com/chatmate/chatmate/internal/instrumentation"
)

// instrumented records a store.<backend>.<op> span and the store metrics
// around every call of the wrapped repository.
type instrumented struct {
	next    Repository
	backend string
	metrics *instrumentation.Metrics
}

// Instrument wraps repo with metrics and tracing. A nil metrics recorder
// still produces spans.
func Instrument(repo Repository, backend string, metrics *instrumentation.Metrics) Repository {
	if metrics == nil {
		metrics = &instrumentation.Metrics{}
	}
	return &instrumented{next: repo, backend: backend, metrics: metrics}
}

func (r *instrumented) observe(ctx context.Context, op string, fn func(context.Context) error) error {
	start := time.Now()
	ctx, span := instrumentation.StartStoreSpan(ctx, r.backend, op)
	defer span.End()

	err := fn(ctx)

	// Missing owners and rejected mutations are answers, not backend failures.
	status := instrumentation.StatusSuccess
	if err != nil && access.KindOf(err) == access.KindStorageFailure {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	r.metrics.RecordStoreOperation(ctx, r.backend, op, status, time.Since(start))
	return err
}

func (r *instrumented) Get(ctx context.Context, username string) (o *access.Owner, err error) {
	err = r.observe(ctx, instrumentation.OperationGet, func(ctx context.Context) error {
		o, err = r.next.Get(ctx, username)
		return err
	})
	return o, err
}

func (r *instrumented) Create(ctx context.Context, owner *access.Owner) error {
	return r.observe(ctx, instrumentation.OperationCreate, func(ctx context.Context) error {
		return r.next.Create(ctx, owner)
	})
}

func (r *instrumented) Update(ctx context.Context, username string, mutate func(*access.Owner) error) (o *access.Owner, err error) {
	err = r.observe(ctx, instrumentation.OperationUpdate, func(ctx context.Context) error {
		o, err = r.next.Update(ctx, username, mutate)
		return err
	})
	return o, err
}

func (r *instrumented) FindByAccess(ctx context.Context, visitor string) (owners []*access.Owner, err error) {
	err = r.observe(ctx, instrumentation.OperationFind, func(ctx context.Context) error {
		owners, err = r.next.FindByAccess(ctx, visitor)
		return err
	})
	return owners, err
}

func (r *instrumented) Search(ctx context.Context, q access.SearchQuery) (owners []*access.Owner, err error) {
	err = r.observe(ctx, instrumentation.OperationSearch, func(ctx context.Context) error {
		owners, err = r.next.Search(ctx, q)
		return err
	})
	return owners, err
}

func (r *instrumented) Count(ctx context.Context) (n int64, err error) {
	err = r.observe(ctx, instrumentation.OperationCount, func(ctx context.Context) error {
		n, err = r.next.Count(ctx)
		return err
	})
	return n, err
}

func (r *instrumented) Ping(ctx context.Context) error {
	return r.observe(ctx, instrumentation.OperationPing, r.next.Ping)
}

func (r *instrumented) Close(ctx context.Context) error {
	return r.next.Close(ctx)
}
