// Package command defines the closed set of UI commands driven through the
// intake wizard and the generator that produces them per website attempt.
package command

import (
	"fmt"
	"time"
)

// Category groups commands into the five fixed blocks of an attempt.
type Category string

const (
	CategoryNavigation   Category = "navigation"
	CategoryFormFill     Category = "form_fill"
	CategoryVerification Category = "verification"
	CategoryInteraction  Category = "interaction"
	CategoryQualityCheck Category = "quality_check"
)

// Categories lists every category in block order.
var Categories = []Category{
	CategoryNavigation,
	CategoryFormFill,
	CategoryVerification,
	CategoryInteraction,
	CategoryQualityCheck,
}

// Action is the operation a command performs within its category.
type Action string

const (
	ActionNavigate    Action = "navigate"
	ActionWaitForLoad Action = "wait_for_load"
	ActionWait        Action = "wait"
	ActionReload      Action = "reload"

	ActionType   Action = "type"
	ActionSelect Action = "select"
	ActionClick  Action = "click"
	ActionToggle Action = "toggle"
	ActionSubmit Action = "submit"

	ActionVerifyVisible Action = "verify_visible"
	ActionVerifyText    Action = "verify_text"
	ActionVerifyTitle   Action = "verify_title"
	ActionVerifyURL     Action = "verify_url"

	ActionScroll   Action = "scroll"
	ActionHover    Action = "hover"
	ActionPressKey Action = "press_key"
	ActionResize   Action = "resize"

	ActionScreenshot         Action = "screenshot"
	ActionSnapshot           Action = "snapshot"
	ActionConsoleErrors      Action = "console_errors"
	ActionNetworkErrors      Action = "network_errors"
	ActionAccessibilityAudit Action = "accessibility_audit"
	ActionPerformanceMetrics Action = "performance_metrics"
)

// Kind is one (category, action) pair of the closed command union.
type Kind struct {
	Category Category
	Action   Action
}

func (k Kind) String() string {
	return fmt.Sprintf("%s/%s", k.Category, k.Action)
}

// supported enumerates every valid (category, action) pair.
var supported = map[Kind]bool{
	{CategoryNavigation, ActionNavigate}:    true,
	{CategoryNavigation, ActionWaitForLoad}: true,
	{CategoryNavigation, ActionWait}:        true,
	{CategoryNavigation, ActionReload}:      true,

	{CategoryFormFill, ActionType}:   true,
	{CategoryFormFill, ActionSelect}: true,
	{CategoryFormFill, ActionClick}:  true,
	{CategoryFormFill, ActionToggle}: true,
	{CategoryFormFill, ActionSubmit}: true,

	{CategoryVerification, ActionVerifyVisible}: true,
	{CategoryVerification, ActionVerifyText}:    true,
	{CategoryVerification, ActionVerifyTitle}:   true,
	{CategoryVerification, ActionVerifyURL}:     true,

	{CategoryInteraction, ActionClick}:    true,
	{CategoryInteraction, ActionScroll}:   true,
	{CategoryInteraction, ActionHover}:    true,
	{CategoryInteraction, ActionPressKey}: true,
	{CategoryInteraction, ActionResize}:   true,

	{CategoryQualityCheck, ActionScreenshot}:         true,
	{CategoryQualityCheck, ActionSnapshot}:           true,
	{CategoryQualityCheck, ActionConsoleErrors}:      true,
	{CategoryQualityCheck, ActionNetworkErrors}:      true,
	{CategoryQualityCheck, ActionAccessibilityAudit}: true,
	{CategoryQualityCheck, ActionPerformanceMetrics}: true,
}

// SupportedKinds returns every valid pair. Order is not significant.
func SupportedKinds() []Kind {
	kinds := make([]Kind, 0, len(supported))
	for k := range supported {
		kinds = append(kinds, k)
	}
	return kinds
}

// Command is one atomic UI operation.
type Command struct {
	ID          string        `json:"id"`
	Category    Category      `json:"category"`
	Action      Action        `json:"action"`
	Target      string        `json:"target,omitempty"`
	Value       string        `json:"value,omitempty"`
	Timeout     time.Duration `json:"timeout"`
	Retries     int           `json:"retries"`
	Critical    bool          `json:"critical,omitempty"`
	Description string        `json:"description,omitempty"`
}

// Kind returns the (category, action) pair of the command.
func (c Command) Kind() Kind {
	return Kind{Category: c.Category, Action: c.Action}
}

// UnsupportedError reports a (category, action) pair outside the closed union.
type UnsupportedError struct {
	CommandID string
	Category  Category
	Action    Action
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("unsupported command %s: %s/%s", e.CommandID, e.Category, e.Action)
}

// Resolve checks that a command belongs to the closed union and returns its kind.
func Resolve(c Command) (Kind, error) {
	k := c.Kind()
	if !supported[k] {
		return k, &UnsupportedError{CommandID: c.ID, Category: c.Category, Action: c.Action}
	}
	return k, nil
}

// CountByCategory tallies commands per category.
func CountByCategory(cmds []Command) map[Category]int {
	counts := make(map[Category]int)
	for _, c := range cmds {
		counts[c.Category]++
	}
	return counts
}
