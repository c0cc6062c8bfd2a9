package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/lucasnoah/sitefactory/internal/fileutil"
)

// ChromeOptions configures a ChromeTransport.
type ChromeOptions struct {
	Headless      bool
	SelectorAttr  string // element refs resolve to [attr="ref"]
	ScreenshotDir string // empty = screenshots are captured but not written
	WindowWidth   int
	WindowHeight  int
}

// ChromeTransport drives a real Chrome instance through chromedp.
type ChromeTransport struct {
	opts         ChromeOptions
	allocContext context.Context
	cancelAlloc  context.CancelFunc
	tabContext   context.Context
	cancelTab    context.CancelFunc

	mu            sync.Mutex
	consoleErrors []string
	networkErrors []string
}

// NewChromeTransport starts a browser and a single tab.
func NewChromeTransport(opts ChromeOptions) (*ChromeTransport, error) {
	if opts.SelectorAttr == "" {
		opts.SelectorAttr = "data-testid"
	}
	if opts.WindowWidth == 0 {
		opts.WindowWidth, opts.WindowHeight = 1440, 900
	}

	allocOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(opts.WindowWidth, opts.WindowHeight),
	)
	if !opts.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}
	allocContext, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tabContext, cancelTab := chromedp.NewContext(allocContext)

	c := &ChromeTransport{
		opts:         opts,
		allocContext: allocContext,
		cancelAlloc:  cancelAlloc,
		tabContext:   tabContext,
		cancelTab:    cancelTab,
	}
	chromedp.ListenTarget(tabContext, c.onEvent)

	if err := chromedp.Run(tabContext, network.Enable()); err != nil {
		c.Close()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	return c, nil
}

// Close shuts down the tab and the browser.
func (c *ChromeTransport) Close() {
	c.cancelTab()
	c.cancelAlloc()
}

func (c *ChromeTransport) onEvent(ev interface{}) {
	switch e := ev.(type) {
	case *runtime.EventConsoleAPICalled:
		if e.Type != runtime.APITypeError {
			return
		}
		var parts []string
		for _, arg := range e.Args {
			if arg.Description != "" {
				parts = append(parts, arg.Description)
			} else {
				parts = append(parts, strings.Trim(string(arg.Value), `"`))
			}
		}
		c.record(&c.consoleErrors, strings.Join(parts, " "))
	case *runtime.EventExceptionThrown:
		if e.ExceptionDetails != nil {
			c.record(&c.consoleErrors, e.ExceptionDetails.Text)
		}
	case *network.EventLoadingFailed:
		if !e.Canceled {
			c.record(&c.networkErrors, e.ErrorText)
		}
	}
}

func (c *ChromeTransport) record(dst *[]string, msg string) {
	c.mu.Lock()
	*dst = append(*dst, msg)
	c.mu.Unlock()
}

func (c *ChromeTransport) drain(src *[]string) string {
	c.mu.Lock()
	msgs := *src
	*src = nil
	c.mu.Unlock()
	if msgs == nil {
		msgs = []string{}
	}
	data, _ := json.Marshal(msgs)
	return string(data)
}

func (c *ChromeTransport) selector(ref string) string {
	return fmt.Sprintf(`[%s="%s"]`, c.opts.SelectorAttr, ref)
}

// run executes actions on the tab, bounded by the caller's deadline and cancellation.
func (c *ChromeTransport) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(c.tabContext)
	defer cancel()
	if dl, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, dl)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// exists reports whether the referenced element is in the DOM without waiting for it.
func (c *ChromeTransport) exists(ctx context.Context, ref string) (bool, error) {
	var nodes []*cdp.Node
	if err := c.run(ctx, chromedp.Nodes(c.selector(ref), &nodes, chromedp.ByQuery, chromedp.AtLeast(0))); err != nil {
		return false, err
	}
	return len(nodes) > 0, nil
}

// Dispatch implements Transport.
func (c *ChromeTransport) Dispatch(ctx context.Context, in Intent) (Result, error) {
	switch in.Operation {
	case OpNavigate:
		if err := c.run(ctx, chromedp.Navigate(in.Param("url"))); err != nil {
			if ctx.Err() != nil {
				return Result{}, err
			}
			return Result{Error: err.Error(), Code: CodeNavigation}, nil
		}
		var loc string
		if err := c.run(ctx, chromedp.Location(&loc)); err != nil {
			return Result{}, err
		}
		return Result{OK: true, Output: loc}, nil

	case OpClick, OpType, OpSelect:
		ref := in.Param("ref")
		ok, err := c.exists(ctx, ref)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			return Result{Error: "no element " + c.selector(ref), Code: CodeNotFound}, nil
		}
		sel := c.selector(ref)
		var action chromedp.Action
		switch in.Operation {
		case OpClick:
			action = chromedp.Click(sel, chromedp.ByQuery)
		case OpType:
			action = chromedp.Tasks{
				chromedp.SetValue(sel, "", chromedp.ByQuery),
				chromedp.SendKeys(sel, in.Param("text"), chromedp.ByQuery),
			}
		default:
			action = chromedp.SetValue(sel, in.Param("value"), chromedp.ByQuery)
		}
		if err := c.run(ctx, action); err != nil {
			return Result{}, err
		}
		return Result{OK: true}, nil

	case OpSnapshot:
		var html string
		if err := c.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
			return Result{}, err
		}
		return Result{OK: true, Output: html}, nil

	case OpScreenshot:
		var buf []byte
		if err := c.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
			return Result{}, err
		}
		if c.opts.ScreenshotDir == "" {
			return Result{OK: true}, nil
		}
		path := filepath.Join(c.opts.ScreenshotDir, in.Param("name")+".png")
		if err := fileutil.WriteAtomic(path, buf); err != nil {
			return Result{Error: err.Error()}, nil
		}
		return Result{OK: true, Output: path}, nil

	case OpEvaluate:
		var res interface{}
		if err := c.run(ctx, chromedp.Evaluate(in.Param("expr"), &res)); err != nil {
			if ctx.Err() != nil {
				return Result{}, err
			}
			return Result{Error: err.Error()}, nil
		}
		if res == nil {
			return Result{OK: true}, nil
		}
		return Result{OK: true, Output: fmt.Sprint(res)}, nil

	case OpWait:
		if ref := in.Param("ref"); ref != "" {
			if err := c.run(ctx, chromedp.WaitVisible(c.selector(ref), chromedp.ByQuery)); err != nil {
				return Result{}, err
			}
			return Result{OK: true}, nil
		}
		d, err := time.ParseDuration(in.Param("duration"))
		if err != nil {
			return Result{Error: fmt.Sprintf("bad duration %q", in.Param("duration"))}, nil
		}
		if err := c.run(ctx, chromedp.Sleep(d)); err != nil {
			return Result{}, err
		}
		return Result{OK: true}, nil

	case OpPressKey:
		if err := c.run(ctx, chromedp.KeyEvent(keyFor(in.Param("key")))); err != nil {
			return Result{}, err
		}
		return Result{OK: true}, nil

	case OpConsoleMessages:
		return Result{OK: true, Output: c.drain(&c.consoleErrors)}, nil

	case OpNetworkRequests:
		return Result{OK: true, Output: c.drain(&c.networkErrors)}, nil

	case OpResize:
		w, errW := strconv.ParseInt(in.Param("width"), 10, 64)
		h, errH := strconv.ParseInt(in.Param("height"), 10, 64)
		if errW != nil || errH != nil {
			return Result{Error: fmt.Sprintf("bad viewport %sx%s", in.Param("width"), in.Param("height"))}, nil
		}
		if err := c.run(ctx, chromedp.EmulateViewport(w, h)); err != nil {
			return Result{}, err
		}
		return Result{OK: true}, nil
	}
	return Result{Error: fmt.Sprintf("unknown operation %q", in.Operation)}, nil
}

func keyFor(name string) string {
	switch strings.ToLower(name) {
	case "tab":
		return kb.Tab
	case "enter":
		return kb.Enter
	case "escape", "esc":
		return kb.Escape
	case "end":
		return kb.End
	case "home":
		return kb.Home
	default:
		return name
	}
}
