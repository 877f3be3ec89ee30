package objectstore

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

type instrumented struct {
	Store
	ops *prometheus.CounterVec
}

// WithMetrics counts every operation by backend, op and result on ops, which
// must have the labels "backend", "op" and "result".
func WithMetrics(s Store, ops *prometheus.CounterVec) Store {
	if s == nil || ops == nil {
		return s
	}
	return &instrumented{Store: s, ops: ops}
}

func (i *instrumented) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	url, err := i.Store.Upload(ctx, key, data, contentType)
	i.observe("upload", err)
	return url, err
}

func (i *instrumented) Overwrite(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	url, err := i.Store.Overwrite(ctx, key, data, contentType)
	i.observe("overwrite", err)
	return url, err
}

func (i *instrumented) Delete(ctx context.Context, key string) error {
	err := i.Store.Delete(ctx, key)
	i.observe("delete", err)
	return err
}

func (i *instrumented) observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	i.ops.WithLabelValues(i.Name(), op, result).Inc()
}
