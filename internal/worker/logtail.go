package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/common/logger"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/mapper"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/metrics"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/model"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/paycontext"
)

const LogTailName = "log_tail_watcher"

// LogTailWatcher scrapes payment events from the last line of a webhook log
// file whenever it changes.
//
// Deprecated: the webhook listener records the same deliveries with verified
// payloads. The watcher remains for deployments that only have a log file.
type LogTailWatcher struct {
	path    string
	buffer  *paycontext.Buffer
	mapper  mapper.PaymentEventMapper
	metrics *metrics.Metrics

	stopOnce  sync.Once
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewLogTailWatcher(path string, buffer *paycontext.Buffer, eventMapper mapper.PaymentEventMapper, m *metrics.Metrics) *LogTailWatcher {
	return &LogTailWatcher{
		path:      filepath.Clean(path),
		buffer:    buffer,
		mapper:    eventMapper,
		metrics:   m,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (w *LogTailWatcher) Name() string {
	return LogTailName
}

// Run watches the log file's directory, so the watch survives the file being
// rotated or recreated. It returns an error only when the watch cannot be set up.
func (w *LogTailWatcher) Run(ctx context.Context) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "paywatch.worker.logtail",
		Source:    metrics.SourceLogTail,
	})

	defer close(w.stoppedCh)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watching %s: %w", w.path, err)
	}

	slog.InfoContext(ctx, "watching webhook log", "path", w.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.stopCh:
			slog.InfoContext(ctx, "log tail watcher stopping")
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			w.onChange(ctx)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "file watcher error", "error", err)
		}
	}
}

// Stop signals the watcher to stop and waits for Run to return.
func (w *LogTailWatcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.stoppedCh
}

func (w *LogTailWatcher) onChange(ctx context.Context) {
	err := runSafe(ctx, LogTailName, func() error {
		_, err := w.HandleChange(ctx)
		return err
	})
	if err == nil {
		return
	}

	w.metrics.LogTailSkipped()
	if IsIgnored(err) {
		slog.DebugContext(ctx, "log change ignored", "reason", err.Error())
		return
	}
	slog.WarnContext(ctx, "log change failed", "error", err)
}

// HandleChange re-reads the log file and records an event from its last
// non-blank line. Read failures and non-payment lines return *IgnoredError.
func (w *LogTailWatcher) HandleChange(ctx context.Context) (*model.PaymentEvent, error) {
	sc := logger.StartSpan(ctx, "logtail.change")
	defer sc.End()
	ctx = sc.Context()

	content, err := os.ReadFile(w.path)
	if err != nil {
		return nil, ignored("log read failed", err)
	}

	event, err := w.mapper.FromLogContent(string(content))
	switch {
	case errors.Is(err, mapper.ErrNotPaymentLine):
		return nil, ignored("not a payment line", err)
	case errors.Is(err, mapper.ErrEmptyLogContent):
		return nil, ignored("empty log", err)
	case err != nil:
		return nil, fmt.Errorf("parsing log line: %w", err)
	}

	w.buffer.Push(event)
	w.metrics.EventRecorded(metrics.SourceLogTail)

	eventCtx := ctx
	if event.OrderID != nil {
		eventCtx = logger.WithLogFields(ctx, logger.LogFields{OrderID: event.OrderID})
	}
	slog.InfoContext(eventCtx, "log tail event recorded",
		"message", logger.Truncate(event.Message, 200))

	return &event, nil
}
