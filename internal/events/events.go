// Package events carries the engine's outward event channel: budget
// alerts, recurring postings and goal milestones flow through an
// in-process bus and are consumed by notification and UI collaborators.
package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Routing keys, shared with the AMQP relay.
const (
	KeyBudgetThreshold = "budget.threshold_crossed"
	KeyRecurringPosted = "recurring.posted"
	KeyGoalMilestone   = "goal.milestone"
)

// Event is anything the engine publishes. Identity is stable for a
// given logical occurrence so consumers can dedup redeliveries.
type Event interface {
	Identity() string
	RoutingKey() string
}

// BudgetThresholdCrossed fires when a budget's consumption meets or
// exceeds one of its alert thresholds, at most once per threshold per
// period instance.
type BudgetThresholdCrossed struct {
	BudgetID    uuid.UUID `json:"budget_id"`
	Threshold   int       `json:"threshold"`
	PeriodStart time.Time `json:"period_start"`
	Percentage  int       `json:"percentage"`
}

func (e BudgetThresholdCrossed) Identity() string {
	return fmt.Sprintf("%s|%d|%d", e.BudgetID, e.Threshold, e.PeriodStart.Unix())
}

func (e BudgetThresholdCrossed) RoutingKey() string { return KeyBudgetThreshold }

// RecurringPosted fires for every occurrence the recurrence engine
// materializes into the ledger.
type RecurringPosted struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	TemplateID    uuid.UUID `json:"template_id"`
	Posted        time.Time `json:"posted"`
}

func (e RecurringPosted) Identity() string {
	return fmt.Sprintf("%s|%s", e.TemplateID, e.TransactionID)
}

func (e RecurringPosted) RoutingKey() string { return KeyRecurringPosted }

// GoalMilestone fires when accumulated contributions first cross a
// 25/50/75/100 percent milestone.
type GoalMilestone struct {
	GoalID    uuid.UUID `json:"goal_id"`
	Milestone int       `json:"milestone"`
}

func (e GoalMilestone) Identity() string {
	return fmt.Sprintf("%s|%d", e.GoalID, e.Milestone)
}

func (e GoalMilestone) RoutingKey() string { return KeyGoalMilestone }
