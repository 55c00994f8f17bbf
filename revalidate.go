package shell

import (
	"context"
	"net/http"
	"time"

	"github.com/always-cache/spa-shell/cache"
	cachekey "github.com/always-cache/spa-shell/pkg/cache-key"
)

// revalidate fetches the request in the background and overwrites the stored entry on success.
// The fetch outlives the client request.
func (w *Worker) revalidate(r *http.Request, key cachekey.Key) {
	generation := w.currentGeneration()
	if generation == nil {
		return
	}
	req := r.Clone(context.WithoutCancel(r.Context()))
	w.pending.Add(1)
	go func() {
		defer w.pending.Done()
		w.log.Trace().Str("key", key.String()).Msg("Revalidating stored response")
		res, snapshot, err := w.fetch(req)
		if err != nil {
			// the stale entry stays
			Revalidations.WithLabelValues("failed").Inc()
			w.log.Debug().Err(err).Str("key", key.String()).Msg("Could not revalidate")
			return
		}
		res.Body.Close()
		err = generation.Put(req.Context(), cache.Entry{
			Key:      key,
			StoredAt: time.Now(),
			Response: snapshot,
		})
		if err != nil {
			Revalidations.WithLabelValues("failed").Inc()
			w.log.Error().Err(err).Str("key", key.String()).Msg("Could not update cache entry")
			return
		}
		Revalidations.WithLabelValues("updated").Inc()
	}()
}

// RefreshAll refetches every GET entry of the worker's generation, one entry at a time.
// Entries whose refetch fails are kept as they are.
// It returns the number of updated entries.
func (w *Worker) RefreshAll(ctx context.Context) (int, error) {
	generation := w.currentGeneration()
	if generation == nil {
		return 0, nil
	}
	keys, err := generation.Keys(ctx)
	if err != nil {
		return 0, err
	}
	updated := 0
	for _, key := range keys {
		if ctx.Err() != nil {
			return updated, ctx.Err()
		}
		if key.Method != http.MethodGet {
			continue
		}
		req, err := key.Request()
		if err != nil {
			w.log.Error().Err(err).Str("key", key.String()).Msg("Could not get request from key")
			continue
		}
		w.log.Trace().Str("key", key.String()).Msg("Updating cache")
		res, snapshot, err := w.fetch(req.WithContext(ctx))
		if err != nil {
			Revalidations.WithLabelValues("failed").Inc()
			w.log.Warn().Err(err).Str("key", key.String()).Msg("Could not refresh cache entry")
			continue
		}
		res.Body.Close()
		if err := generation.Put(ctx, cache.Entry{Key: key, StoredAt: time.Now(), Response: snapshot}); err != nil {
			return updated, err
		}
		Revalidations.WithLabelValues("updated").Inc()
		updated++
	}
	return updated, nil
}
