package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MeKo-Tech/goscan/internal/barcode"
	"github.com/MeKo-Tech/goscan/internal/frame"
	"github.com/MeKo-Tech/goscan/internal/scheduler"
	"github.com/MeKo-Tech/goscan/internal/session"
)

const notFoundMessage = "no barcode found"

// outcomes collects one session's listener calls. A nil result is a miss.
type outcomes chan *barcode.Result

func (o outcomes) ScanSuccess(string) {}

func (o outcomes) ScanResult(res *barcode.Result) { o <- res }

func (o outcomes) DecodeFailure() { o <- nil }

// worker owns one session and decoder and decodes one file at a time.
type worker struct {
	session *session.Session
	results outcomes
}

func newWorker(ctx context.Context, cfg *Config, loader *frame.FileLoader, pool *scheduler.Pool) (*worker, error) {
	reader, err := barcode.NewReader(cfg.Decoder, cfg.Logger)
	if err != nil {
		return nil, err
	}
	results := make(outcomes, 1)
	sess, err := session.New(ctx, session.Config{
		Decoder:  reader,
		Loader:   loader,
		Pool:     pool,
		Listener: results,
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	return &worker{session: sess, results: results}, nil
}

func (w *worker) close() {
	_ = w.session.Close(context.Background())
}

func (w *worker) decode(ctx context.Context, path string) ItemResult {
	start := time.Now()
	item := ItemResult{File: path}

	if err := w.session.DecodeFile(ctx, path); err != nil {
		item.Error = err.Error()
		item.Duration = time.Since(start)
		return item
	}

	select {
	case res := <-w.results:
		if res == nil {
			item.Error = notFoundMessage
			break
		}
		item.Found = true
		item.Text = res.Text
		item.Format = res.Format.String()
		item.Points = res.Points
	case <-ctx.Done():
		item.Error = ctx.Err().Error()
	}
	item.Duration = time.Since(start)
	return item
}

// processFiles decodes paths with cfg.Workers sessions. Items keep the order
// of paths.
func processFiles(ctx context.Context, cfg *Config, paths []string) ([]ItemResult, error) {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(paths) {
		workers = len(paths)
	}

	loader := frame.NewFileLoader(cfg.Viewport, cfg.MaxPixels, cfg.Logger)
	pool := scheduler.NewPool(cfg.PoolSize)

	ws := make([]*worker, 0, workers)
	defer func() {
		for _, w := range ws {
			w.close()
		}
	}()
	for range workers {
		w, err := newWorker(ctx, cfg, loader, pool)
		if err != nil {
			return nil, fmt.Errorf("failed to start worker: %w", err)
		}
		ws = append(ws, w)
	}

	items := make([]ItemResult, len(paths))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for _, w := range ws {
		wg.Add(1)
		go func(w *worker) {
			defer wg.Done()
			for i := range jobs {
				items[i] = w.decode(ctx, paths[i])
				cfg.Logger.Debug("file decoded", "path", paths[i], "found", items[i].Found,
					"duration", items[i].Duration)
			}
		}(w)
	}

feed:
	for i := range paths {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return items, err
	}
	return items, nil
}

func logger(cfg *Config) *slog.Logger {
	if cfg.Logger != nil {
		return cfg.Logger
	}
	return slog.Default()
}
