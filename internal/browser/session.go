package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/revosurge/adwatch/internal/config"
)

// ChromeSession implements Session on top of a dedicated headless Chrome
// instance. One session per agent run; sessions are not safe for concurrent
// use, matching the loop's single-threaded execution model.
type ChromeSession struct {
	id          string
	logger      *zap.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc

	navTimeout time.Duration
	actTimeout time.Duration
}

var _ Session = (*ChromeSession)(nil)

// NewChromeSession starts a browser instance configured per cfg. The returned
// session must be closed by the caller.
func NewChromeSession(parentCtx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*ChromeSession, error) {
	sessionID := uuid.New().String()[:8]
	log := logger.Named("browser").With(zap.String("session_id", sessionID))

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight),
	)
	for _, arg := range cfg.Args {
		if name, value, ok := strings.Cut(strings.TrimPrefix(arg, "--"), "="); ok {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(strings.TrimPrefix(arg, "--"), true))
		}
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parentCtx, opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	// Starting the browser eagerly surfaces launch failures here instead of
	// on the first action.
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	log.Info("Browser session started", zap.Bool("headless", cfg.Headless))
	return &ChromeSession{
		id:          sessionID,
		logger:      log,
		ctx:         browserCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
		navTimeout:  cfg.NavigationTimeout,
		actTimeout:  cfg.ActionTimeout,
	}, nil
}

// run executes chromedp actions against the session's browser context while
// honoring the caller's deadline and cancellation.
func (s *ChromeSession) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()

	// Unwind promptly if the caller's context dies mid-action.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Navigate loads the given URL and waits for the document body.
func (s *ChromeSession) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating", zap.String("url", url))
	return s.run(ctx, s.navTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// Act executes a native browser action. Per-action failures are reported in
// the result, never as a session error.
func (s *ChromeSession) Act(ctx context.Context, action Action) ActionResult {
	var err error
	switch action.Kind {
	case ActionNavigate:
		err = s.Navigate(ctx, action.URL)
	case ActionClick:
		err = s.run(ctx, s.actTimeout,
			chromedp.WaitVisible(action.Selector, chromedp.ByQuery),
			chromedp.Click(action.Selector, chromedp.ByQuery),
		)
	case ActionType:
		err = s.run(ctx, s.actTimeout,
			chromedp.WaitVisible(action.Selector, chromedp.ByQuery),
			chromedp.Clear(action.Selector, chromedp.ByQuery),
			chromedp.SendKeys(action.Selector, action.Text, chromedp.ByQuery),
		)
	case ActionUpload:
		err = s.run(ctx, s.actTimeout,
			chromedp.SetUploadFiles(action.Selector, []string{action.FilePath}, chromedp.ByQuery),
		)
	case ActionScroll:
		delta := 600
		if strings.EqualFold(action.Dir, "up") {
			delta = -600
		}
		err = s.run(ctx, s.actTimeout,
			chromedp.Evaluate(fmt.Sprintf("window.scrollBy(0, %d)", delta), nil),
		)
	case ActionWait:
		select {
		case <-time.After(action.Duration):
		case <-ctx.Done():
			err = ctx.Err()
		}
	case ActionPressEnter:
		err = s.PressEnter(ctx, action.Selector)
	default:
		err = fmt.Errorf("unknown browser action kind: %s", action.Kind)
	}

	if err != nil {
		s.logger.Warn("Browser action failed", zap.String("kind", string(action.Kind)), zap.Error(err))
		return ActionResult{OK: false, Error: err.Error()}
	}
	return ActionResult{OK: true}
}

// PressEnter submits a form field for flows with no explicit submit button:
// focus the element, then dispatch a raw Enter key event.
func (s *ChromeSession) PressEnter(ctx context.Context, selector string) error {
	if err := s.run(ctx, s.actTimeout, chromedp.Focus(selector, chromedp.ByQuery)); err != nil {
		return err
	}
	return s.dispatchKey(ctx, "\r")
}

// Observe captures the current page state: URL, title, a PNG screenshot and
// an outline of interactive elements for the model to ground its selectors.
func (s *ChromeSession) Observe(ctx context.Context) (Observation, error) {
	var (
		url, title string
		shot       []byte
		outline    string
	)
	err := s.run(ctx, s.actTimeout,
		chromedp.Location(&url),
		chromedp.Title(&title),
		chromedp.CaptureScreenshot(&shot),
		chromedp.Evaluate(outlineScript, &outline),
	)
	if err != nil {
		return Observation{}, fmt.Errorf("failed to observe page: %w", err)
	}
	return Observation{
		URL:           url,
		Title:         title,
		ScreenshotPNG: shot,
		Outline:       outline,
		CapturedAt:    time.Now().UTC(),
	}, nil
}

// Close tears down the browser instance.
func (s *ChromeSession) Close(ctx context.Context) error {
	s.cancel()
	s.allocCancel()
	s.logger.Info("Browser session closed")
	return nil
}

// dispatchKey is kept for raw key events that SendKeys cannot express.
func (s *ChromeSession) dispatchKey(ctx context.Context, key string) error {
	return s.run(ctx, s.actTimeout, chromedp.ActionFunc(func(c context.Context) error {
		return input.DispatchKeyEvent(input.KeyDown).WithKey(key).Do(c)
	}))
}

// outlineScript enumerates visible interactive elements with stable CSS
// selectors so the model can reference them in click/type actions.
const outlineScript = `(() => {
  const lines = [];
  const selectorFor = (el) => {
    if (el.id) return '#' + CSS.escape(el.id);
    if (el.name) return el.tagName.toLowerCase() + '[name="' + el.name + '"]';
    const parts = [];
    let node = el;
    while (node && node.nodeType === 1 && parts.length < 4) {
      let part = node.tagName.toLowerCase();
      const parent = node.parentElement;
      if (parent) {
        const siblings = Array.from(parent.children).filter(c => c.tagName === node.tagName);
        if (siblings.length > 1) part += ':nth-of-type(' + (siblings.indexOf(node) + 1) + ')';
      }
      parts.unshift(part);
      node = parent;
    }
    return parts.join(' > ');
  };
  const visible = (el) => {
    const r = el.getBoundingClientRect();
    return r.width > 0 && r.height > 0;
  };
  const els = document.querySelectorAll('a, button, input, select, textarea, [role="button"], [role="tab"], [role="menuitem"]');
  let i = 0;
  for (const el of els) {
    if (!visible(el) || i >= 120) continue;
    const tag = el.tagName.toLowerCase();
    const text = (el.innerText || el.value || el.placeholder || el.getAttribute('aria-label') || '').trim().slice(0, 80);
    const type = el.getAttribute('type');
    lines.push('[' + i + '] <' + tag + (type ? ' type=' + type : '') + '> "' + text + '" selector=' + selectorFor(el));
    i++;
  }
  return lines.join('\n');
})()`
