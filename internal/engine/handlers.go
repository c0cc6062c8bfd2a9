package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lucasnoah/sitefactory/internal/automation"
	"github.com/lucasnoah/sitefactory/internal/command"
)

// call carries one command invocation into a handler.
type call struct {
	engine    *Engine
	cmd       command.Command
	websiteID string
	result    *Result
}

func (c *call) do(ctx context.Context, op automation.Operation, params map[string]string) (string, error) {
	return c.engine.port.Do(ctx, op, params)
}

// query returns a JS expression selecting the command's target element.
func (c *call) query() string {
	return fmt.Sprintf("document.querySelector('[%s=%q]')", c.engine.opts.SelectorAttr, c.cmd.Target)
}

type handler func(ctx context.Context, c *call) (string, error)

// handlerTable maps every supported kind to its handler.
func handlerTable() map[command.Kind]handler {
	k := func(cat command.Category, a command.Action) command.Kind {
		return command.Kind{Category: cat, Action: a}
	}
	return map[command.Kind]handler{
		k(command.CategoryNavigation, command.ActionNavigate):    navigate,
		k(command.CategoryNavigation, command.ActionWaitForLoad): waitForLoad,
		k(command.CategoryNavigation, command.ActionWait):        wait,
		k(command.CategoryNavigation, command.ActionReload):      reload,

		k(command.CategoryFormFill, command.ActionType):   typeText,
		k(command.CategoryFormFill, command.ActionSelect): selectOption,
		k(command.CategoryFormFill, command.ActionClick):  click,
		k(command.CategoryFormFill, command.ActionToggle): toggle,
		k(command.CategoryFormFill, command.ActionSubmit): click,

		k(command.CategoryVerification, command.ActionVerifyVisible): verifyVisible,
		k(command.CategoryVerification, command.ActionVerifyText):    verifyText,
		k(command.CategoryVerification, command.ActionVerifyTitle):   verifyTitle,
		k(command.CategoryVerification, command.ActionVerifyURL):     verifyURL,

		k(command.CategoryInteraction, command.ActionClick):    click,
		k(command.CategoryInteraction, command.ActionScroll):   scroll,
		k(command.CategoryInteraction, command.ActionHover):    hover,
		k(command.CategoryInteraction, command.ActionPressKey): pressKey,
		k(command.CategoryInteraction, command.ActionResize):   resize,

		k(command.CategoryQualityCheck, command.ActionScreenshot):         screenshot,
		k(command.CategoryQualityCheck, command.ActionSnapshot):           snapshot,
		k(command.CategoryQualityCheck, command.ActionConsoleErrors):      consoleErrors,
		k(command.CategoryQualityCheck, command.ActionNetworkErrors):      networkErrors,
		k(command.CategoryQualityCheck, command.ActionAccessibilityAudit): accessibilityAudit,
		k(command.CategoryQualityCheck, command.ActionPerformanceMetrics): performanceMetrics,
	}
}

// navigation

func navigate(ctx context.Context, c *call) (string, error) {
	return c.do(ctx, automation.OpNavigate, map[string]string{"url": c.cmd.Value})
}

func waitForLoad(ctx context.Context, c *call) (string, error) {
	if c.cmd.Target != "" {
		return c.do(ctx, automation.OpWait, map[string]string{"ref": c.cmd.Target})
	}
	state, err := c.do(ctx, automation.OpEvaluate, map[string]string{"expr": "document.readyState", "expect": "complete"})
	if err != nil {
		return "", err
	}
	if state == "loading" {
		return state, fmt.Errorf("document still loading")
	}
	return state, nil
}

func wait(ctx context.Context, c *call) (string, error) {
	d := c.cmd.Value
	if d == "" {
		d = "500ms"
	}
	return c.do(ctx, automation.OpWait, map[string]string{"duration": d})
}

func reload(ctx context.Context, c *call) (string, error) {
	return c.do(ctx, automation.OpEvaluate, map[string]string{"expr": "location.reload()"})
}

// form fill and clicks

func typeText(ctx context.Context, c *call) (string, error) {
	return c.do(ctx, automation.OpType, map[string]string{"ref": c.cmd.Target, "text": c.cmd.Value})
}

func selectOption(ctx context.Context, c *call) (string, error) {
	return c.do(ctx, automation.OpSelect, map[string]string{"ref": c.cmd.Target, "value": c.cmd.Value})
}

func click(ctx context.Context, c *call) (string, error) {
	return c.do(ctx, automation.OpClick, map[string]string{"ref": c.cmd.Target})
}

// toggle switches the control on when the requested state is "true";
// otherwise it only checks the control is present.
func toggle(ctx context.Context, c *call) (string, error) {
	if c.cmd.Value == "true" {
		return c.do(ctx, automation.OpClick, map[string]string{"ref": c.cmd.Target, "value": c.cmd.Value})
	}
	return c.do(ctx, automation.OpWait, map[string]string{"ref": c.cmd.Target})
}

// verification

func verifyVisible(ctx context.Context, c *call) (string, error) {
	return c.do(ctx, automation.OpWait, map[string]string{"ref": c.cmd.Target})
}

func verifyText(ctx context.Context, c *call) (string, error) {
	expr := fmt.Sprintf("(%s || {}).innerText || ''", c.query())
	return expectContains(ctx, c, expr, "text of "+c.cmd.Target)
}

func verifyTitle(ctx context.Context, c *call) (string, error) {
	return expectContains(ctx, c, "document.title", "title")
}

func verifyURL(ctx context.Context, c *call) (string, error) {
	return expectContains(ctx, c, "location.href", "url")
}

func expectContains(ctx context.Context, c *call, expr, what string) (string, error) {
	got, err := c.do(ctx, automation.OpEvaluate, map[string]string{"expr": expr, "expect": c.cmd.Value})
	if err != nil {
		return "", err
	}
	if !strings.Contains(got, c.cmd.Value) {
		return got, fmt.Errorf("%s %q does not contain %q", what, got, c.cmd.Value)
	}
	return got, nil
}

// interaction

func scroll(ctx context.Context, c *call) (string, error) {
	expr := "window.scrollTo(0, document.body.scrollHeight)"
	if c.cmd.Value == "top" {
		expr = "window.scrollTo(0, 0)"
	}
	return c.do(ctx, automation.OpEvaluate, map[string]string{"expr": expr})
}

func hover(ctx context.Context, c *call) (string, error) {
	expr := fmt.Sprintf("(function(el){ if (!el) return false; el.dispatchEvent(new MouseEvent('mouseover', {bubbles: true})); return true; })(%s)", c.query())
	out, err := c.do(ctx, automation.OpEvaluate, map[string]string{"expr": expr, "expect": "true"})
	if err != nil {
		return "", err
	}
	if out == "false" {
		return out, fmt.Errorf("%w: %s", automation.ErrElementNotFound, c.cmd.Target)
	}
	return out, nil
}

func pressKey(ctx context.Context, c *call) (string, error) {
	return c.do(ctx, automation.OpPressKey, map[string]string{"key": c.cmd.Value})
}

func resize(ctx context.Context, c *call) (string, error) {
	w, h, ok := strings.Cut(c.cmd.Value, "x")
	if !ok {
		return "", fmt.Errorf("bad viewport %q, want WxH", c.cmd.Value)
	}
	if _, err := strconv.Atoi(w); err != nil {
		return "", fmt.Errorf("bad viewport width %q", w)
	}
	if _, err := strconv.Atoi(h); err != nil {
		return "", fmt.Errorf("bad viewport height %q", h)
	}
	return c.do(ctx, automation.OpResize, map[string]string{"width": w, "height": h})
}

// quality checks

func screenshot(ctx context.Context, c *call) (string, error) {
	if !c.engine.opts.SaveScreenshots {
		return "", nil
	}
	name := fmt.Sprintf("%s-%s", c.websiteID, c.cmd.ID)
	ref, err := c.do(ctx, automation.OpScreenshot, map[string]string{"name": name})
	if err != nil {
		return "", err
	}
	if ref != "" {
		c.result.Screenshots = append(c.result.Screenshots, ref)
	}
	return ref, nil
}

func snapshot(ctx context.Context, c *call) (string, error) {
	html, err := c.do(ctx, automation.OpSnapshot, nil)
	if err != nil {
		return "", err
	}
	c.result.Snapshots = append(c.result.Snapshots, html)
	return fmt.Sprintf("%d bytes", len(html)), nil
}

func consoleErrors(ctx context.Context, c *call) (string, error) {
	return expectNoMessages(ctx, c, automation.OpConsoleMessages, "console errors")
}

func networkErrors(ctx context.Context, c *call) (string, error) {
	return expectNoMessages(ctx, c, automation.OpNetworkRequests, "failed requests")
}

func expectNoMessages(ctx context.Context, c *call, op automation.Operation, what string) (string, error) {
	out, err := c.do(ctx, op, nil)
	if err != nil {
		return "", err
	}
	var msgs []string
	if out != "" {
		if err := json.Unmarshal([]byte(out), &msgs); err != nil {
			return out, fmt.Errorf("parse %s: %w", what, err)
		}
	}
	if len(msgs) > 0 {
		return out, fmt.Errorf("%d %s: %s", len(msgs), what, strings.Join(msgs, "; "))
	}
	return out, nil
}

const a11yExpr = `document.querySelectorAll('img:not([alt]), input:not([aria-label]):not([id])').length`

func accessibilityAudit(ctx context.Context, c *call) (string, error) {
	out, err := c.do(ctx, automation.OpEvaluate, map[string]string{"expr": a11yExpr, "expect": "0"})
	if err != nil {
		return "", err
	}
	if n, convErr := strconv.ParseFloat(out, 64); convErr == nil && n > 0 {
		return out, fmt.Errorf("%d elements missing accessible labels", int(n))
	}
	return out, nil
}

const perfExpr = `(function(){ var t = performance.timing; return t.loadEventEnd > 0 ? t.loadEventEnd - t.navigationStart : 0; })()`

// performanceMetrics records page load time. Anything over slowPageLoad fails the check.
func performanceMetrics(ctx context.Context, c *call) (string, error) {
	out, err := c.do(ctx, automation.OpEvaluate, map[string]string{"expr": perfExpr, "expect": "0"})
	if err != nil {
		return "", err
	}
	if ms, convErr := strconv.ParseFloat(out, 64); convErr == nil && time.Duration(ms)*time.Millisecond > slowPageLoad {
		return out, fmt.Errorf("page load took %s", time.Duration(ms)*time.Millisecond)
	}
	return out, nil
}

const slowPageLoad = 10 * time.Second
