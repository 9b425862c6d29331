package models

import (
	"errors"
	"fmt"
)

// OrderStatus is the lifecycle state of an order
type OrderStatus string

// Order statuses
const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusShipping  OrderStatus = "shipping"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

var ErrUnknownStatus = errors.New("unknown order status")

// ParseOrderStatus converts a client supplied status into an OrderStatus
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch st := OrderStatus(s); st {
	case OrderStatusPending, OrderStatusShipping, OrderStatusCompleted, OrderStatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// Terminal reports whether no transition may leave the status
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// Party is the relation of an actor to an order. Values combine as a bit set.
type Party uint8

const (
	PartyNone   Party = 0
	PartyBuyer  Party = 1 << 0
	PartySeller Party = 1 << 1
)

func (p Party) String() string {
	switch p {
	case PartyBuyer:
		return "buyer"
	case PartySeller:
		return "seller"
	case PartyBuyer | PartySeller:
		return "buyer or seller"
	}
	return "none"
}

// Transition is one permitted edge of the order state machine
type Transition struct {
	From OrderStatus
	To   OrderStatus
	// Parties allowed to trigger the edge
	Parties Party
	// CommitsStock marks the fulfillment edge
	CommitsStock bool
}

// Allows reports whether an actor related to the order as p may trigger the edge
func (t Transition) Allows(p Party) bool {
	return t.Parties&p != 0
}

type edge struct{ from, to OrderStatus }

var transitions = map[edge]Transition{}

func init() {
	for _, t := range []Transition{
		{From: OrderStatusPending, To: OrderStatusShipping, Parties: PartySeller},
		{From: OrderStatusShipping, To: OrderStatusCompleted, Parties: PartyBuyer, CommitsStock: true},
		{From: OrderStatusPending, To: OrderStatusCancelled, Parties: PartyBuyer | PartySeller},
		{From: OrderStatusShipping, To: OrderStatusCancelled, Parties: PartyBuyer | PartySeller},
	} {
		transitions[edge{t.From, t.To}] = t
	}
}

// LookupTransition returns the edge from -> to if the state machine permits it
func LookupTransition(from, to OrderStatus) (Transition, bool) {
	t, ok := transitions[edge{from, to}]
	return t, ok
}

// Transitions lists the edges leaving s
func Transitions(s OrderStatus) []Transition {
	var out []Transition
	for _, to := range []OrderStatus{OrderStatusPending, OrderStatusShipping, OrderStatusCompleted, OrderStatusCancelled} {
		if t, ok := transitions[edge{s, to}]; ok {
			out = append(out, t)
		}
	}
	return out
}
