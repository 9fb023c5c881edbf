package directory

import "context"

// BatchError pairs a failed item's key with what went wrong.
type BatchError struct {
	Key   string `json:"key"`
	Error string `json:"error"`

	// Err keeps the original error for callers that map taxonomy to
	// transport codes. Not serialized.
	Err error `json:"-"`
}

// BatchResult carries the partial outcome of a batch run. Items that
// succeeded stay committed regardless of later failures.
type BatchResult[T any] struct {
	Succeeded []T          `json:"succeeded"`
	Errors    []BatchError `json:"errors"`
}

// RunBatch applies op to every key in order. Items run sequentially so
// audit ordering stays deterministic, and each failure is collected
// instead of propagated: one bad item never blocks the rest.
func RunBatch[T any](keys []string, op func(key string) (T, error)) BatchResult[T] {
	res := BatchResult[T]{
		Succeeded: []T{},
		Errors:    []BatchError{},
	}
	for _, key := range keys {
		out, err := op(key)
		if err != nil {
			res.Errors = append(res.Errors, BatchError{Key: key, Error: err.Error(), Err: err})
			continue
		}
		res.Succeeded = append(res.Succeeded, out)
	}
	return res
}

// BatchArchive soft-deletes every id, isolating per-item failures.
func (s *Service) BatchArchive(ctx context.Context, caller Principal, ids []string) BatchResult[*Record] {
	return RunBatch(ids, func(id string) (*Record, error) {
		return s.SoftDelete(ctx, caller, id)
	})
}

// BatchRestore restores every id, isolating per-item failures.
func (s *Service) BatchRestore(ctx context.Context, caller Principal, ids []string) BatchResult[*Record] {
	return RunBatch(ids, func(id string) (*Record, error) {
		return s.Restore(ctx, caller, id)
	})
}

// BatchSetStatus applies one status to every id through the full
// update contract, so each item gets its own checks and audit trail.
func (s *Service) BatchSetStatus(ctx context.Context, caller Principal, ids []string, status Status) BatchResult[*Record] {
	return RunBatch(ids, func(id string) (*Record, error) {
		st := status
		return s.Update(ctx, caller, id, UpdateInput{Status: &st})
	})
}
