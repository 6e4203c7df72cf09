package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// BrowserConfig configures the headless browser page source. URL templates
// take the book ID as their single %s argument.
type BrowserConfig struct {
	BookID string

	LoginURL  string
	ReaderURL string
	InfoURL   string
	MetaURL   string

	Email    string
	Password string

	EmailSelector    string
	PasswordSelector string
	SubmitSelector   string

	ContentSelector  string // page container; screenshots are taken of this node
	PositionSelector string // footer text such as "Page 12 of 340"
	NextSelector     string // optional; ArrowRight is sent when empty

	TOCOpenSelector  string
	TOCItemSelector  string
	TOCTitleSelector string // within an item; the item itself when empty
	TOCLabelSelector string // within an item

	GoToOpenSelector   string // opens the "go to page" dialog
	GoToInputSelector  string
	GoToSubmitSelector string

	Headless         bool
	UserAgent        string
	OperationTimeout time.Duration
	LoadTimeout      time.Duration

	Logger *slog.Logger
}

// Browser is a PageSource backed by a Chrome instance driven over CDP.
type Browser struct {
	cfg    BrowserConfig
	logger *slog.Logger

	allocCancel context.CancelFunc
	taskCtx     context.Context
	taskCancel  context.CancelFunc
}

// NewBrowser creates a browser page source. Chrome is not started until Open.
func NewBrowser(cfg BrowserConfig) *Browser {
	if cfg.OperationTimeout == 0 {
		cfg.OperationTimeout = 30 * time.Second
	}
	if cfg.LoadTimeout == 0 {
		cfg.LoadTimeout = 2 * time.Minute
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Browser{cfg: cfg, logger: logger.With("source", "browser")}
}

// Validate checks that every setting needed to open a session is present.
func (b *Browser) Validate() error {
	return missingSettings(
		"book id", b.cfg.BookID,
		"reader url", b.cfg.ReaderURL,
		"email", b.cfg.Email,
		"password", b.cfg.Password,
		"content selector", b.cfg.ContentSelector,
		"position selector", b.cfg.PositionSelector,
	)
}

// Open launches Chrome, signs in and loads the book.
func (b *Browser) Open(ctx context.Context) (*Session, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.DisableGPU,
		chromedp.UserAgent(b.cfg.UserAgent),
		chromedp.WindowSize(1280, 1800),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("headless", b.cfg.Headless),
	)

	// The browser outlives individual calls; it is torn down by Close.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	b.allocCancel = allocCancel
	b.taskCtx = taskCtx
	b.taskCancel = taskCancel

	if err := b.run(ctx, b.cfg.LoadTimeout, b.loginActions()...); err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}

	readerURL := fmt.Sprintf(b.cfg.ReaderURL, b.cfg.BookID)
	b.logger.Info("loading book", "url", readerURL)
	if err := b.run(ctx, b.cfg.LoadTimeout,
		chromedp.Navigate(readerURL),
		chromedp.WaitVisible(b.cfg.ContentSelector, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("load reader: %w", err)
	}

	sess := &Session{}
	if err := b.run(ctx, b.cfg.OperationTimeout, chromedp.Title(&sess.Title)); err != nil {
		return nil, fmt.Errorf("read title: %w", err)
	}

	var err error
	if sess.Info, err = b.fetchBlob(ctx, b.cfg.InfoURL); err != nil {
		return nil, fmt.Errorf("fetch info: %w", err)
	}
	if sess.Meta, err = b.fetchBlob(ctx, b.cfg.MetaURL); err != nil {
		return nil, fmt.Errorf("fetch meta: %w", err)
	}
	if sess.TOC, err = b.readTOC(ctx); err != nil {
		return nil, fmt.Errorf("read table of contents: %w", err)
	}

	b.logger.Info("session open", "title", sess.Title, "toc_entries", len(sess.TOC))
	return sess, nil
}

func (b *Browser) loginActions() []chromedp.Action {
	if b.cfg.LoginURL == "" {
		return nil
	}
	actions := []chromedp.Action{chromedp.Navigate(b.cfg.LoginURL)}
	if b.cfg.EmailSelector != "" {
		actions = append(actions,
			chromedp.WaitVisible(b.cfg.EmailSelector, chromedp.ByQuery),
			chromedp.SendKeys(b.cfg.EmailSelector, b.cfg.Email, chromedp.ByQuery),
		)
	}
	if b.cfg.PasswordSelector != "" {
		actions = append(actions,
			chromedp.WaitVisible(b.cfg.PasswordSelector, chromedp.ByQuery),
			chromedp.SendKeys(b.cfg.PasswordSelector, b.cfg.Password, chromedp.ByQuery),
		)
	}
	if b.cfg.SubmitSelector != "" {
		actions = append(actions,
			chromedp.Click(b.cfg.SubmitSelector, chromedp.ByQuery),
			chromedp.WaitReady("body", chromedp.ByQuery),
		)
	}
	return actions
}

// fetchBlob fetches a JSON document from inside the page so the session's
// cookies are sent.
func (b *Browser) fetchBlob(ctx context.Context, urlTemplate string) (json.RawMessage, error) {
	if urlTemplate == "" {
		return nil, nil
	}
	url := fmt.Sprintf(urlTemplate, b.cfg.BookID)
	script := fmt.Sprintf(`fetch(%s, {credentials: "include"}).then(r => r.ok ? r.text() : "")`, strconv.Quote(url))

	var text string
	err := b.run(ctx, b.cfg.OperationTimeout, chromedp.Evaluate(script, &text, awaitPromise))
	if err != nil {
		return nil, err
	}
	return rawJSON(text), nil
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

func (b *Browser) readTOC(ctx context.Context) ([]TocItem, error) {
	if b.cfg.TOCItemSelector == "" {
		return nil, nil
	}
	if b.cfg.TOCOpenSelector != "" {
		if err := b.run(ctx, b.cfg.OperationTimeout,
			chromedp.Click(b.cfg.TOCOpenSelector, chromedp.ByQuery),
			chromedp.WaitVisible(b.cfg.TOCItemSelector, chromedp.ByQuery),
		); err != nil {
			return nil, err
		}
	}

	script := fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).map(el => {
		const pick = (sel) => sel ? el.querySelector(sel) : null;
		const t = pick(%s) || el;
		const l = pick(%s);
		return {title: (t.innerText || "").split("\n")[0].trim(), label: l ? l.innerText.trim() : ""};
	})`,
		strconv.Quote(b.cfg.TOCItemSelector),
		strconv.Quote(b.cfg.TOCTitleSelector),
		strconv.Quote(b.cfg.TOCLabelSelector),
	)

	var items []TocItem
	if err := b.run(ctx, b.cfg.OperationTimeout, chromedp.Evaluate(script, &items)); err != nil {
		return nil, err
	}

	if b.cfg.TOCOpenSelector != "" {
		if err := b.run(ctx, b.cfg.OperationTimeout, chromedp.KeyEvent(kb.Escape)); err != nil {
			b.logger.Warn("failed to close table of contents", "error", err)
		}
	}
	return items, nil
}

// NavigateToStart jumps to page 1.
func (b *Browser) NavigateToStart(ctx context.Context) error {
	return b.NavigateToPage(ctx, 1)
}

// NavigateToPage uses the reader's "go to page" dialog.
func (b *Browser) NavigateToPage(ctx context.Context, page int) error {
	if b.cfg.GoToOpenSelector == "" || b.cfg.GoToInputSelector == "" {
		return errors.New("go-to-page selectors are not configured")
	}
	actions := []chromedp.Action{
		chromedp.Click(b.cfg.GoToOpenSelector, chromedp.ByQuery),
		chromedp.WaitVisible(b.cfg.GoToInputSelector, chromedp.ByQuery),
		chromedp.SetValue(b.cfg.GoToInputSelector, "", chromedp.ByQuery),
		chromedp.SendKeys(b.cfg.GoToInputSelector, strconv.Itoa(page), chromedp.ByQuery),
	}
	if b.cfg.GoToSubmitSelector != "" {
		actions = append(actions, chromedp.Click(b.cfg.GoToSubmitSelector, chromedp.ByQuery))
	} else {
		actions = append(actions, chromedp.SendKeys(b.cfg.GoToInputSelector, kb.Enter, chromedp.ByQuery))
	}
	actions = append(actions, chromedp.WaitVisible(b.cfg.ContentSelector, chromedp.ByQuery))
	return b.run(ctx, b.cfg.OperationTimeout, actions...)
}

// Advance clicks the next-page control or sends ArrowRight.
func (b *Browser) Advance(ctx context.Context) error {
	if b.cfg.NextSelector != "" {
		return b.run(ctx, b.cfg.OperationTimeout, chromedp.Click(b.cfg.NextSelector, chromedp.ByQuery, chromedp.NodeVisible))
	}
	return b.run(ctx, b.cfg.OperationTimeout, chromedp.KeyEvent(kb.ArrowRight))
}

// CurrentPosition reads the position footer without waiting for it to appear.
func (b *Browser) CurrentPosition(ctx context.Context) (string, error) {
	script := fmt.Sprintf(`(() => { const el = document.querySelector(%s); return el ? el.innerText.trim() : ""; })()`,
		strconv.Quote(b.cfg.PositionSelector))
	var text string
	err := b.run(ctx, b.cfg.OperationTimeout, chromedp.Evaluate(script, &text))
	return text, err
}

// ContentID returns the source of the first page image, or a prefix of the
// page text when the reader renders text directly.
func (b *Browser) ContentID(ctx context.Context) (string, error) {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return "";
		const img = el.querySelector("img");
		if (img && img.src) return img.src;
		return (el.innerText || "").slice(0, 512);
	})()`, strconv.Quote(b.cfg.ContentSelector))
	var id string
	err := b.run(ctx, b.cfg.OperationTimeout, chromedp.Evaluate(script, &id))
	return id, err
}

// Capture screenshots the page container.
func (b *Browser) Capture(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := b.run(ctx, b.cfg.OperationTimeout,
		chromedp.Screenshot(b.cfg.ContentSelector, &buf, chromedp.NodeVisible, chromedp.ByQuery),
	); err != nil {
		return nil, err
	}
	return buf, nil
}

// Close shuts Chrome down.
func (b *Browser) Close() error {
	if b.taskCancel != nil {
		b.taskCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	return nil
}

// run executes actions against the browser tab, bounded by timeout and
// aborted when ctx is done.
func (b *Browser) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if b.taskCtx == nil {
		return errors.New("browser session is not open")
	}
	if len(actions) == 0 {
		return nil
	}
	opCtx, cancel := context.WithTimeout(b.taskCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(opCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}
