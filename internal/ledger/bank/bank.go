// Package bank implements a small bank-account aggregate on top of
// internal/eventcore: deposit and withdraw commands, balance-changed
// events, and an insufficient-funds rejection. It is the worked example
// the core's end-to-end tests are written against.
package bank

import (
	"github.com/ledgerflow/eventcore/internal/eventcore/decision"
	"github.com/ledgerflow/eventcore/internal/eventcore/response"
)

// State is the folded balance of one account, in minor currency units.
type State struct {
	Balance int64
	Opened  bool
}

// Event is the sum of account events. Exactly one of the pointer fields is
// set; Deposited and Withdrawn carry the amount applied.
type Event struct {
	Deposited *int64
	Withdrawn *int64
}

// Reason is a rejection reason surfaced to the command caller.
type Reason string

const (
	// ReasonInsufficientFunds means a withdrawal would take the balance
	// below zero.
	ReasonInsufficientFunds Reason = "insufficient funds"

	// ReasonInvalidAmount means a deposit or withdrawal amount was not
	// strictly positive.
	ReasonInvalidAmount Reason = "amount must be positive"
)

// Notification is published when a command changes the account balance.
type Notification struct {
	Kind      string
	AccountID string
	Amount    int64
	Balance   int64
}

// Command is the sum of account commands.
type Command struct {
	AccountID string
	Deposit   *DepositPayload
	Withdraw  *WithdrawPayload
}

// DepositPayload requests crediting an account.
type DepositPayload struct {
	Amount int64
}

// WithdrawPayload requests debiting an account.
type WithdrawPayload struct {
	Amount int64
}

// Deposit constructs a deposit Command for accountID.
func Deposit(accountID string, amount int64) Command {
	return Command{AccountID: accountID, Deposit: &DepositPayload{Amount: amount}}
}

// Withdraw constructs a withdraw Command for accountID.
func Withdraw(accountID string, amount int64) Command {
	return Command{AccountID: accountID, Withdraw: &WithdrawPayload{Amount: amount}}
}

// Model implements model.Model[State, Event, Command, Reason, Notification].
type Model struct{}

// Initial is the state of an account that has never been folded.
func (Model) Initial() State { return State{} }

// Transition applies one event to state. Both event kinds are
// unconditionally valid to fold — rejection happens at decide-time, not
// fold-time — so Transition never returns an error for this aggregate.
func (Model) Transition(state State, event Event) (State, []Reason) {
	switch {
	case event.Deposited != nil:
		state.Opened = true
		state.Balance += *event.Deposited
	case event.Withdrawn != nil:
		state.Opened = true
		state.Balance -= *event.Withdrawn
	}
	return state, nil
}

// Decide runs a command against state, producing events and notifications.
func (Model) Decide(state State, cmd Command) response.ResponseT[Reason, Event, Notification, struct{}] {
	switch {
	case cmd.Deposit != nil:
		return decideDeposit(state, cmd.AccountID, cmd.Deposit.Amount)
	case cmd.Withdraw != nil:
		return decideWithdraw(state, cmd.AccountID, cmd.Withdraw.Amount)
	default:
		return response.Pure[Reason, Event, Notification, struct{}](struct{}{})
	}
}

func decideDeposit(state State, accountID string, amount int64) response.ResponseT[Reason, Event, Notification, struct{}] {
	if amount <= 0 {
		return response.FromDecision[Reason, Event, Notification, struct{}](
			decision.Reject[Reason, Event, struct{}](ReasonInvalidAmount))
	}
	newBalance := state.Balance + amount
	d := decision.Accept[Reason, Event, struct{}](Event{Deposited: &amount})
	return response.FromDecision[Reason, Event, Notification, struct{}](d).
		Publish(Notification{Kind: "deposited", AccountID: accountID, Amount: amount, Balance: newBalance})
}

func decideWithdraw(state State, accountID string, amount int64) response.ResponseT[Reason, Event, Notification, struct{}] {
	if amount <= 0 {
		return response.FromDecision[Reason, Event, Notification, struct{}](
			decision.Reject[Reason, Event, struct{}](ReasonInvalidAmount))
	}
	if state.Balance < amount {
		return response.FromDecision[Reason, Event, Notification, struct{}](
			decision.Reject[Reason, Event, struct{}](ReasonInsufficientFunds))
	}
	newBalance := state.Balance - amount
	d := decision.Accept[Reason, Event, struct{}](Event{Withdrawn: &amount})
	return response.FromDecision[Reason, Event, Notification, struct{}](d).
		Publish(Notification{Kind: "withdrawn", AccountID: accountID, Amount: amount, Balance: newBalance})
}
