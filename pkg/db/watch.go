package db

import (
	"context"
	"time"

	"github.com/odvcencio/folio/pkg/graph"
	"github.com/odvcencio/folio/pkg/object"
)

// watcher is one running watch goroutine.
type watcher struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (w *watcher) stop() {
	w.cancel()
	<-w.done
}

// Watch polls the local source every interval and calls fn with each new
// graph. The returned func stops the watch and waits for it to exit; a
// write already running is left to finish.
func (db *DB) Watch(ctx context.Context, interval time.Duration, fn func(*graph.Graph)) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	w := &watcher{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(w.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		last := db.Graph().Sha()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			g, err := db.Sync(ctx)
			if err != nil {
				if ctx.Err() == nil {
					db.logger.Warn("watch: sync failed", "error", err)
				}
				continue
			}
			if g.Sha() != last && ctx.Err() == nil {
				last = g.Sha()
				fn(g)
			}
		}
	}()
	return w.stop
}

// WatchRemote pulls whenever the remote announces a tree the local source
// does not have, calling fn with each new graph. Dropped subscriptions are
// retried after retry.
func (db *DB) WatchRemote(ctx context.Context, retry time.Duration, fn func(*graph.Graph)) (stop func(), err error) {
	if db.remote == nil {
		return nil, ErrNoRemote
	}
	sub, ok := db.remote.(Subscriber)
	if !ok {
		return nil, ErrNoEvents
	}
	ctx, cancel := context.WithCancel(ctx)
	w := &watcher{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(w.done)
		for {
			err := sub.Subscribe(ctx, func(sha object.Hash) {
				if sha == db.Graph().Sha() {
					return
				}
				if _, err := db.Pull(ctx); err != nil {
					if ctx.Err() == nil {
						db.logger.Warn("watch remote: pull failed", "sha", sha.Short(), "error", err)
					}
					return
				}
				if ctx.Err() == nil {
					fn(db.Graph())
				}
			})
			if ctx.Err() != nil {
				return
			}
			db.logger.Warn("watch remote: subscription dropped", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(retry):
			}
		}
	}()
	return w.stop, nil
}
