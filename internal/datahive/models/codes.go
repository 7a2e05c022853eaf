package models

import (
	"fmt"
	"strings"
)

// SuspensionType is the first half of a status code.
type SuspensionType string

const (
	SuspensionTemporary SuspensionType = "TS"
	SuspensionPermanent SuspensionType = "PS"
)

// Reason is the second half of a status code.
type Reason string

const (
	ReasonDeceased       Reason = "RIP"
	ReasonDeceasedBefore Reason = "RP2"
	ReasonConverted      Reason = "OLD"
	ReasonDeregistered   Reason = "ACR"
	ReasonSystem         Reason = "SYS"
)

// StatusCode is a suspension type and reason pair, rendered as "TS-SYS".
type StatusCode struct {
	Type   SuspensionType `json:"type"`
	Reason Reason         `json:"reason"`
}

func (c StatusCode) String() string {
	return string(c.Type) + "-" + string(c.Reason)
}

// MarshalText renders the code in its dashed form.
func (c StatusCode) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText parses the dashed form.
func (c *StatusCode) UnmarshalText(text []byte) error {
	t, r, ok := strings.Cut(string(text), "-")
	if !ok || t == "" || r == "" {
		return fmt.Errorf("invalid status code %q", text)
	}
	c.Type, c.Reason = SuspensionType(t), Reason(r)
	return nil
}

var (
	CodeDeceasedAfterOffence  = StatusCode{SuspensionPermanent, ReasonDeceased}
	CodeDeceasedBeforeOffence = StatusCode{SuspensionPermanent, ReasonDeceasedBefore}
	CodeConverted             = StatusCode{SuspensionTemporary, ReasonConverted}
	CodeDeregistered          = StatusCode{SuspensionTemporary, ReasonDeregistered}
	CodeSystemError           = StatusCode{SuspensionTemporary, ReasonSystem}
)
