package sequencer

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"amm-lab/internal/ledger"
)

// Output is the confirmed result of one step.
type Output struct {
	Contract *ledger.Contract // set for Deploy steps
	Receipt  *ledger.Receipt
}

// Outputs collects step results by name, in confirmation order.
type Outputs struct {
	order  []string
	byName map[string]Output
}

func newOutputs() *Outputs {
	return &Outputs{byName: make(map[string]Output)}
}

func (o *Outputs) set(name string, out Output) {
	o.order = append(o.order, name)
	o.byName[name] = out
}

// Get returns the output of a confirmed step.
func (o *Outputs) Get(name string) (Output, bool) {
	out, ok := o.byName[name]
	return out, ok
}

// Contract returns the contract created by a confirmed Deploy step.
func (o *Outputs) Contract(name string) (ledger.Contract, error) {
	out, ok := o.byName[name]
	if !ok {
		return ledger.Contract{}, fmt.Errorf("step %q has not been confirmed", name)
	}
	if out.Contract == nil {
		return ledger.Contract{}, fmt.Errorf("step %q did not deploy a contract", name)
	}
	return *out.Contract, nil
}

// Address returns the address created by a confirmed Deploy step.
func (o *Outputs) Address(name string) (common.Address, error) {
	c, err := o.Contract(name)
	if err != nil {
		return common.Address{}, err
	}
	return c.Address, nil
}

// Steps returns confirmed step names in order.
func (o *Outputs) Steps() []string {
	out := make([]string, len(o.order))
	copy(out, o.order)
	return out
}

// Addresses returns the addresses of every confirmed deployment.
func (o *Outputs) Addresses() map[string]common.Address {
	m := make(map[string]common.Address)
	for name, out := range o.byName {
		if out.Contract != nil {
			m[name] = out.Contract.Address
		}
	}
	return m
}
