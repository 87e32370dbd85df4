package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// DefaultUserAgent is a current desktop Chrome user agent. Headless Chrome
// otherwise announces itself as HeadlessChrome, which the booking site rejects.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36"

// ChromeOptions configures the local Chrome instances started by ChromeLauncher.
type ChromeOptions struct {
	// ExecPath overrides Chrome discovery when set.
	ExecPath     string
	Headless     bool
	NoSandbox    bool
	UserAgent    string `validate:"required"`
	WindowWidth  int    `validate:"gt=0"`
	WindowHeight int    `validate:"gt=0"`
}

// DefaultChromeOptions returns a headless, sandboxed 1366x768 desktop profile.
func DefaultChromeOptions() ChromeOptions {
	return ChromeOptions{
		Headless:     true,
		UserAgent:    DefaultUserAgent,
		WindowWidth:  1366,
		WindowHeight: 768,
	}
}

// ChromeLauncher starts one Chrome process per session through chromedp.
// Each process gets its own temporary profile, so no cookies or storage
// survive from one session to the next.
type ChromeLauncher struct {
	options ChromeOptions
	logger  *slog.Logger
}

// NewChromeLauncher returns a Launcher backed by a local Chrome binary.
func NewChromeLauncher(options ChromeOptions, logger *slog.Logger) *ChromeLauncher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChromeLauncher{
		options: options,
		logger:  logger.With(slog.String("component", "chrome")),
	}
}

func (l *ChromeLauncher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(l.options.UserAgent),
		chromedp.WindowSize(l.options.WindowWidth, l.options.WindowHeight),
	)
	if !l.options.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if l.options.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if l.options.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.options.ExecPath))
	}
	return opts
}

// Launch starts Chrome and opens a blank tab with the network domain enabled.
func (l *ChromeLauncher) Launch(ctx context.Context) (Session, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, l.allocatorOptions()...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			l.logger.Debug("chromedp: " + fmt.Sprintf(format, args...))
		}),
	)

	// The first Run starts the browser process.
	if err := chromedp.Run(browserCtx, network.Enable()); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	return &chromeSession{
		ctx:           browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
		logger:        l.logger,
	}, nil
}

type chromeSession struct {
	ctx           context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
	logger        *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

func (s *chromeSession) Observe(match func(url string) bool) (<-chan Response, func()) {
	out := make(chan Response, 8)
	listenCtx, stop := context.WithCancel(s.ctx)

	var mu sync.Mutex
	pending := map[network.RequestID]*network.Response{}

	chromedp.ListenTarget(listenCtx, func(ev any) {
		switch ev := ev.(type) {
		case *network.EventResponseReceived:
			if ev.Response == nil || !match(ev.Response.URL) {
				return
			}
			mu.Lock()
			pending[ev.RequestID] = ev.Response
			mu.Unlock()
		case *network.EventLoadingFinished:
			mu.Lock()
			resp, ok := pending[ev.RequestID]
			delete(pending, ev.RequestID)
			mu.Unlock()
			if ok {
				// Listeners must not block the event loop, and the body can
				// only be fetched once loading has finished.
				go s.deliver(listenCtx, ev.RequestID, resp, out)
			}
		case *network.EventLoadingFailed:
			mu.Lock()
			delete(pending, ev.RequestID)
			mu.Unlock()
		}
	})

	return out, stop
}

func (s *chromeSession) deliver(ctx context.Context, id network.RequestID, resp *network.Response, out chan<- Response) {
	c := chromedp.FromContext(ctx)
	if c == nil || c.Target == nil {
		return
	}
	body, err := network.GetResponseBody(id).Do(cdp.WithExecutor(ctx, c.Target))
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Debug("could not read response body",
				slog.String("url", resp.URL), slog.String("error", err.Error()))
		}
		return
	}

	select {
	case out <- Response{URL: resp.URL, Status: int(resp.Status), MIMEType: resp.MimeType, Body: body}:
	case <-ctx.Done():
	}
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	listenCtx, stop := context.WithCancel(s.ctx)
	defer stop()

	domReady := make(chan struct{})
	var once sync.Once
	chromedp.ListenTarget(listenCtx, func(ev any) {
		if _, ok := ev.(*page.EventDomContentEventFired); ok {
			once.Do(func() { close(domReady) })
		}
	})

	committed := make(chan error, 1)
	go func() {
		committed <- chromedp.Run(s.ctx, chromedp.ActionFunc(func(actx context.Context) error {
			_, _, errorText, err := page.Navigate(url).Do(actx)
			if err != nil {
				return err
			}
			if errorText != "" {
				return errors.New(errorText)
			}
			return nil
		}))
	}()

	select {
	case err := <-committed:
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrNavigation, url, err)
		}
	case <-ctx.Done():
		return fmt.Errorf("%w: %s: %w", ErrNavigation, url, ctx.Err())
	}

	select {
	case <-domReady:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %s: waiting for document: %w", ErrNavigation, url, ctx.Err())
	}
}

func (s *chromeSession) Close() error {
	s.closeOnce.Do(func() {
		err := chromedp.Cancel(s.ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.closeErr = fmt.Errorf("close chrome: %w", err)
		}
		s.cancelBrowser()
		s.cancelAlloc()
	})
	return s.closeErr
}
