package mlog

import (
	"fmt"
	"io"

	"github.com/dogmatiq/iago/must"
)

const (
	// InstanceIDIcon is the icon shown directly before a process instance ID.
	// It is a filled diamond, a "token" that moves through the process.
	InstanceIDIcon Icon = "◆"

	// BlueprintIDIcon is the icon shown directly before a blueprint ID. It is
	// the "is defined as" symbol, since every instance is defined by its
	// blueprint.
	BlueprintIDIcon Icon = "≝"

	// ShardIcon is the icon shown directly before a shard number.
	ShardIcon Icon = "#"

	// NodeIcon is the icon shown directly before a cluster member address.
	NodeIcon Icon = "@"

	// CreateIcon is shown when an instance is created for the first time.
	CreateIcon Icon = "✚"

	// RehydrateIcon is shown when a passivated instance is rebuilt from the
	// journal. It is an upward arrow, the state is "brought up" from storage.
	RehydrateIcon Icon = "▲"

	// PassivateIcon is shown when an instance is released from memory. It is
	// a downward arrow, the state is "put down" into storage.
	PassivateIcon Icon = "▼"

	// DeleteIcon is shown when an instance is tombstoned.
	DeleteIcon Icon = "⌫"

	// AcquireIcon is shown when this node takes ownership of a shard.
	AcquireIcon Icon = "⊕"

	// ReleaseIcon is shown when this node gives up ownership of a shard.
	ReleaseIcon Icon = "⊖"

	// ErrorIcon is the icon shown when logging information about an error.
	// It is a heavy cross, indicating a failure.
	ErrorIcon Icon = "✖"

	// SeparatorIcon is an icon used to separate strings of unrelated text
	// inside a log message.
	SeparatorIcon Icon = "●"
)

// Icon is a unicode symbol used as an icon in log messages.
type Icon string

func (i Icon) String() string {
	return string(i)
}

// WriteTo writes a string representation of the icon to w.
// If i is the zero-value, a single space is rendered.
func (i Icon) WriteTo(w io.Writer) (int64, error) {
	s := string(i)
	if s == "" {
		s = " "
	}

	n, err := io.WriteString(w, s)
	return int64(n), err
}

// WithLabel return an IconWithLabel containing this icon and the given label.
func (i Icon) WithLabel(f string, v ...interface{}) IconWithLabel {
	label := fmt.Sprintf(f, v...)
	if label == "" {
		label = "-"
	}

	return IconWithLabel{i, label}
}

// WithID return an IconWithLabel containing this icon and an ID as its label.
//
// The id is formatted using FormatID().
func (i Icon) WithID(id string) IconWithLabel {
	return i.WithLabel("%s", FormatID(id))
}

// IconWithLabel is a container for an icon and its associated text label.
type IconWithLabel struct {
	Icon  Icon
	Label string
}

func (i IconWithLabel) String() string {
	return i.Icon.String() + " " + i.Label
}

// WriteTo writes a string representation of the icon and its label to w.
func (i IconWithLabel) WriteTo(w io.Writer) (_ int64, err error) {
	defer must.Recover(&err)

	n := must.WriteTo(w, i.Icon)
	n += must.Write(w, space1)
	n += must.WriteString(w, i.Label)

	return int64(n), err
}

func errorIcon(err error) Icon {
	if err == nil {
		return ""
	}

	return ErrorIcon
}
